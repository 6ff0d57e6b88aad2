package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scraplink/linkaudit/internal/types"
)

// PostgresRepository is the durable Repository backend (C1), storing
// link rows and sheet configuration in a relational schema.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an existing connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetLink implements Repository.
func (r *PostgresRepository) GetLink(ctx context.Context, linkID string) (*types.Link, error) {
	var l types.Link
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, source_url, target_domain, original_target_domain,
		       kind, state, response_code, indexable, link_class, canonical_url,
		       load_time_ms, matched_anchor_html, non_indexable_reason, checked_at,
		       row_index, sheet_id
		FROM links WHERE id = $1`, linkID,
	).Scan(
		&l.ID, &l.ProjectID, &l.SourceURL, &l.TargetDomain, &l.OriginalTargetDomain,
		&l.Kind, &l.State, &l.ResponseCode, &l.Indexable, &l.LinkClass, &l.CanonicalURL,
		&l.LoadTimeMs, &l.MatchedAnchorHTML, &l.NonIndexableReason, &l.CheckedAt,
		&l.RowIndex, &l.SheetID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &types.RepositoryError{Op: "get_link", Err: err}
	}
	return &l, nil
}

// UpsertLink implements Repository.
func (r *PostgresRepository) UpsertLink(ctx context.Context, l *types.Link) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO links (
			id, project_id, source_url, target_domain, original_target_domain,
			kind, state, response_code, indexable, link_class, canonical_url,
			load_time_ms, matched_anchor_html, non_indexable_reason, checked_at,
			row_index, sheet_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			original_target_domain = EXCLUDED.original_target_domain,
			row_index = EXCLUDED.row_index,
			sheet_id = EXCLUDED.sheet_id,
			state = EXCLUDED.state,
			response_code = EXCLUDED.response_code,
			indexable = EXCLUDED.indexable,
			link_class = EXCLUDED.link_class,
			canonical_url = EXCLUDED.canonical_url,
			load_time_ms = EXCLUDED.load_time_ms,
			matched_anchor_html = EXCLUDED.matched_anchor_html,
			non_indexable_reason = EXCLUDED.non_indexable_reason,
			checked_at = EXCLUDED.checked_at`,
		l.ID, l.ProjectID, l.SourceURL, l.TargetDomain, l.OriginalTargetDomain,
		l.Kind, l.State, l.ResponseCode, l.Indexable, l.LinkClass, l.CanonicalURL,
		l.LoadTimeMs, l.MatchedAnchorHTML, l.NonIndexableReason, l.CheckedAt,
		l.RowIndex, l.SheetID,
	)
	if err != nil {
		return &types.RepositoryError{Op: "upsert_link", Err: err}
	}
	return nil
}

// ResetAnalysis implements Repository.
func (r *PostgresRepository) ResetAnalysis(ctx context.Context, projectID string, kind types.LinkKind) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE links SET
			state = $3,
			response_code = NULL,
			indexable = NULL,
			link_class = NULL,
			canonical_url = NULL,
			load_time_ms = NULL,
			matched_anchor_html = NULL,
			non_indexable_reason = NULL,
			checked_at = NULL
		WHERE project_id = $1 AND kind = $2`,
		projectID, kind, types.LinkStatePending,
	)
	if err != nil {
		return &types.RepositoryError{Op: "reset_analysis", Err: err}
	}
	return nil
}

// ListByProjectAndKind implements Repository.
func (r *PostgresRepository) ListByProjectAndKind(ctx context.Context, projectID string, kind types.LinkKind) ([]*types.Link, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, source_url, target_domain, original_target_domain,
		       kind, state, response_code, indexable, link_class, canonical_url,
		       load_time_ms, matched_anchor_html, non_indexable_reason, checked_at,
		       row_index, sheet_id
		FROM links WHERE project_id = $1 AND kind = $2 ORDER BY row_index ASC, id ASC`,
		projectID, kind,
	)
	if err != nil {
		return nil, &types.RepositoryError{Op: "list_by_project_and_kind", Err: err}
	}
	defer rows.Close()

	var out []*types.Link
	for rows.Next() {
		var l types.Link
		if err := rows.Scan(
			&l.ID, &l.ProjectID, &l.SourceURL, &l.TargetDomain, &l.OriginalTargetDomain,
			&l.Kind, &l.State, &l.ResponseCode, &l.Indexable, &l.LinkClass, &l.CanonicalURL,
			&l.LoadTimeMs, &l.MatchedAnchorHTML, &l.NonIndexableReason, &l.CheckedAt,
			&l.RowIndex, &l.SheetID,
		); err != nil {
			return nil, &types.RepositoryError{Op: "list_by_project_and_kind", Err: err}
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.RepositoryError{Op: "list_by_project_and_kind", Err: err}
	}
	return out, nil
}

// GetSheet implements Repository.
func (r *PostgresRepository) GetSheet(ctx context.Context, sheetID string) (*types.Sheet, error) {
	var s types.Sheet
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, user_id, spreadsheet_id, sheet_gid, target_domain,
		       url_column, target_column, result_range, interval, status,
		       last_run, next_run, run_count
		FROM sheets WHERE id = $1`, sheetID,
	).Scan(
		&s.ID, &s.ProjectID, &s.UserID, &s.SpreadsheetRef.SpreadsheetID, &s.SpreadsheetRef.SheetGID,
		&s.TargetDomain, &s.URLColumn, &s.TargetColumn, &s.ResultRange, &s.Interval, &s.Status,
		&s.LastRun, &s.NextRun, &s.RunCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &types.RepositoryError{Op: "get_sheet", Err: err}
	}
	return &s, nil
}

// UpdateSheet implements Repository.
func (r *PostgresRepository) UpdateSheet(ctx context.Context, s *types.Sheet) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sheets (
			id, project_id, user_id, spreadsheet_id, sheet_gid, target_domain,
			url_column, target_column, result_range, interval, status,
			last_run, next_run, run_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			target_domain = EXCLUDED.target_domain,
			url_column = EXCLUDED.url_column,
			target_column = EXCLUDED.target_column,
			result_range = EXCLUDED.result_range,
			interval = EXCLUDED.interval,
			status = EXCLUDED.status,
			last_run = EXCLUDED.last_run,
			next_run = EXCLUDED.next_run,
			run_count = EXCLUDED.run_count`,
		s.ID, s.ProjectID, s.UserID, s.SpreadsheetRef.SpreadsheetID, s.SpreadsheetRef.SheetGID,
		s.TargetDomain, s.URLColumn, s.TargetColumn, s.ResultRange, s.Interval, s.Status,
		s.LastRun, s.NextRun, s.RunCount,
	)
	if err != nil {
		return &types.RepositoryError{Op: "update_sheet", Err: err}
	}
	return nil
}

// ListActiveSheets implements Repository.
func (r *PostgresRepository) ListActiveSheets(ctx context.Context) ([]*types.Sheet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, user_id, spreadsheet_id, sheet_gid, target_domain,
		       url_column, target_column, result_range, interval, status,
		       last_run, next_run, run_count
		FROM sheets WHERE status NOT IN ($1, $2)`,
		types.SheetStatusInactive, types.SheetStatusError,
	)
	if err != nil {
		return nil, &types.RepositoryError{Op: "list_active_sheets", Err: err}
	}
	defer rows.Close()

	var out []*types.Sheet
	for rows.Next() {
		var s types.Sheet
		if err := rows.Scan(
			&s.ID, &s.ProjectID, &s.UserID, &s.SpreadsheetRef.SpreadsheetID, &s.SpreadsheetRef.SheetGID,
			&s.TargetDomain, &s.URLColumn, &s.TargetColumn, &s.ResultRange, &s.Interval, &s.Status,
			&s.LastRun, &s.NextRun, &s.RunCount,
		); err != nil {
			return nil, &types.RepositoryError{Op: "list_active_sheets", Err: err}
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.RepositoryError{Op: "list_active_sheets", Err: err}
	}
	return out, nil
}

// GetUserPriority implements Repository.
func (r *PostgresRepository) GetUserPriority(ctx context.Context, userID string) (types.Priority, error) {
	var plan string
	err := r.pool.QueryRow(ctx, `SELECT plan FROM users WHERE id = $1`, userID).Scan(&plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.PriorityFree, nil
		}
		return 0, &types.RepositoryError{Op: "get_user_priority", Err: err}
	}
	return types.PriorityForPlan(plan), nil
}
