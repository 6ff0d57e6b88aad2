// Package sheets implements C7: a thin bridge between the recurring
// scheduler and one tab of an external spreadsheet. It resolves a
// spreadsheet+gid reference to a sheet name, reads source/target
// columns, and writes the five-column verdict block back with a
// colour format (SPEC_FULL.md §4.5).
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/scraplink/linkaudit/internal/types"
)

// ReadResult is what Read returns for one sheet's source/target columns.
type ReadResult struct {
	URLs            []string
	Targets         []string
	HasExistingData bool
	TotalRows       int
	UniqueURLs      int
}

// Adapter is the capability C7 exposes to the scheduler.
type Adapter interface {
	GetMetadata(ctx context.Context, ref types.SpreadsheetRef) (sheetName string, err error)
	Read(ctx context.Context, ref types.SpreadsheetRef, sheetName, urlCol, targetCol, defaultTarget string) (ReadResult, error)
	WriteVerdicts(ctx context.Context, ref types.SpreadsheetRef, sheetName string, resultRange []string, links []*types.Link) error
	Format(ctx context.Context, ref types.SpreadsheetRef, sheetGID int64, resultRange []string, links []*types.Link)
}

// The fixed row palette from SPEC_FULL.md §4.4 step 4.
var (
	colorGreen  = &sheets.Color{Red: 0.71, Green: 0.88, Blue: 0.72}
	colorYellow = &sheets.Color{Red: 1, Green: 0.95, Blue: 0.6}
	colorRed    = &sheets.Color{Red: 0.96, Green: 0.78, Blue: 0.78}
	colorGrey   = &sheets.Color{Red: 0.85, Green: 0.85, Blue: 0.85}
)

// GoogleAdapter talks to the real Sheets API through a Service that
// NewGoogleAdapter builds from a credentials file or a stored user
// token file.
type GoogleAdapter struct {
	svc     *sheets.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewGoogleAdapter builds an adapter authenticated either from a
// service-account credentials file or, if credentialsFile is empty, a
// user OAuth2 token file, per SPEC_FULL.md §6 ("Implemented via
// google.golang.org/api/sheets/v4"). A service-account file is
// preferred for unattended deployments; the token-file path exists for
// auditing a user's own spreadsheets without a service account.
func NewGoogleAdapter(ctx context.Context, credentialsFile, tokenFile string, requestTimeout time.Duration, logger *slog.Logger) (*GoogleAdapter, error) {
	var clientOpt option.ClientOption
	switch {
	case credentialsFile != "":
		clientOpt = option.WithCredentialsFile(credentialsFile)
	case tokenFile != "":
		creds, err := loadOAuthCredentials(ctx, tokenFile)
		if err != nil {
			return nil, err
		}
		clientOpt = option.WithTokenSource(creds.TokenSource)
	default:
		return nil, fmt.Errorf("sheets: one of credentials_file or token_file is required")
	}

	svc, err := sheets.NewService(ctx, clientOpt)
	if err != nil {
		return nil, fmt.Errorf("build sheets service: %w", err)
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleAdapter{svc: svc, timeout: requestTimeout, logger: logger.With("component", "sheets.adapter")}, nil
}

// loadOAuthCredentials parses a stored user OAuth2 token (refresh
// token plus client id/secret, Google's own authorized_user JSON
// shape) and returns credentials that keep the access token refreshed
// for the lifetime of the adapter.
func loadOAuthCredentials(ctx context.Context, tokenFile string) (*google.Credentials, error) {
	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth2 token: %w", err)
	}
	return creds, nil
}

func (a *GoogleAdapter) ctxWithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.timeout)
}

// GetMetadata resolves a spreadsheet+gid reference to the sheet's
// display name, needed because the write/read APIs address ranges by
// name, not by the numeric gid the rest of the system stores.
func (a *GoogleAdapter) GetMetadata(ctx context.Context, ref types.SpreadsheetRef) (string, error) {
	ctx, cancel := a.ctxWithTimeout(ctx)
	defer cancel()

	resp, err := a.svc.Spreadsheets.Get(ref.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", &types.SheetError{SpreadsheetID: ref.SpreadsheetID, Op: "GetMetadata", Err: err}
	}
	for _, sheet := range resp.Sheets {
		if sheet.Properties != nil && sheet.Properties.SheetId == ref.SheetGID {
			return sheet.Properties.Title, nil
		}
	}
	return "", &types.SheetError{SpreadsheetID: ref.SpreadsheetID, Op: "GetMetadata", Err: fmt.Errorf("sheet gid %d not found", ref.SheetGID)}
}

// Read fetches the url and target-domain columns. The header row is
// skipped; a blank per-row target falls back to defaultTarget
// (SPEC_FULL.md §4.5).
func (a *GoogleAdapter) Read(ctx context.Context, ref types.SpreadsheetRef, sheetName, urlCol, targetCol, defaultTarget string) (ReadResult, error) {
	ctx, cancel := a.ctxWithTimeout(ctx)
	defer cancel()

	urlRange := fmt.Sprintf("%s!%s2:%s", sheetName, urlCol, urlCol)
	resp, err := a.svc.Spreadsheets.Values.Get(ref.SpreadsheetID, urlRange).
		MajorDimension("COLUMNS").Context(ctx).Do()
	if err != nil {
		return ReadResult{}, &types.SheetError{SpreadsheetID: ref.SpreadsheetID, Op: "Read(urls)", Err: err}
	}

	var rawURLs []any
	if len(resp.Values) > 0 {
		rawURLs = resp.Values[0]
	}

	targetRange := fmt.Sprintf("%s!%s2:%s", sheetName, targetCol, targetCol)
	targetResp, err := a.svc.Spreadsheets.Values.Get(ref.SpreadsheetID, targetRange).
		MajorDimension("COLUMNS").Context(ctx).Do()
	if err != nil {
		return ReadResult{}, &types.SheetError{SpreadsheetID: ref.SpreadsheetID, Op: "Read(targets)", Err: err}
	}
	var rawTargets []any
	if len(targetResp.Values) > 0 {
		rawTargets = targetResp.Values[0]
	}

	result := ReadResult{HasExistingData: len(rawURLs) > 0, TotalRows: len(rawURLs)}
	seen := make(map[string]bool, len(rawURLs))
	for i, raw := range rawURLs {
		url := fmt.Sprintf("%v", raw)
		if url == "" {
			continue
		}
		target := defaultTarget
		if i < len(rawTargets) {
			if t := fmt.Sprintf("%v", rawTargets[i]); t != "" {
				target = t
			}
		}
		result.URLs = append(result.URLs, url)
		result.Targets = append(result.Targets, target)
		if !seen[url] {
			seen[url] = true
			result.UniqueURLs++
		}
	}
	return result, nil
}

// WriteVerdicts writes the five result columns — status, response
// code, indexable yes/no, non-indexable reason, link-found flag with
// timestamp — for links already ordered by row index.
func (a *GoogleAdapter) WriteVerdicts(ctx context.Context, ref types.SpreadsheetRef, sheetName string, resultRange []string, links []*types.Link) error {
	ctx, cancel := a.ctxWithTimeout(ctx)
	defer cancel()

	if len(resultRange) != types.ResultColumns {
		return types.ErrInvalidRange
	}

	rows := make([][]any, len(links))
	for i, link := range links {
		rows[i] = verdictRow(link)
	}

	startCol, endCol := resultRange[0], resultRange[len(resultRange)-1]
	writeRange := fmt.Sprintf("%s!%s2:%s%d", sheetName, startCol, endCol, len(links)+1)

	vr := &sheets.ValueRange{Values: rows}
	_, err := a.svc.Spreadsheets.Values.Update(ref.SpreadsheetID, writeRange, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return &types.SheetError{SpreadsheetID: ref.SpreadsheetID, Op: "WriteVerdicts", Err: err}
	}
	return nil
}

// Format applies the colour rule (green ok, yellow ok+canonicalised,
// red problem, grey header). Best-effort: a failure is logged here and
// not returned to the caller (SPEC_FULL.md §4.5).
func (a *GoogleAdapter) Format(ctx context.Context, ref types.SpreadsheetRef, sheetGID int64, resultRange []string, links []*types.Link) {
	ctx, cancel := a.ctxWithTimeout(ctx)
	defer cancel()

	if len(resultRange) != types.ResultColumns || len(links) == 0 {
		return
	}

	requests := make([]*sheets.Request, 0, len(links)+1)
	requests = append(requests, headerFormatRequest(sheetGID))

	for i, link := range links {
		requests = append(requests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetGID,
					StartRowIndex:    int64(i + 1),
					EndRowIndex:      int64(i + 2),
					StartColumnIndex: 0,
					EndColumnIndex:   int64(types.ResultColumns),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: colorForLink(link),
					},
				},
				Fields: "userEnteredFormat.backgroundColor",
			},
		})
	}

	batch := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := a.svc.Spreadsheets.BatchUpdate(ref.SpreadsheetID, batch).Context(ctx).Do(); err != nil {
		a.logger.Warn("format failed", "spreadsheet_id", ref.SpreadsheetID, "error", err)
	}
}

func headerFormatRequest(sheetGID int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetGID,
				StartRowIndex:    0,
				EndRowIndex:      1,
				StartColumnIndex: 0,
				EndColumnIndex:   int64(types.ResultColumns),
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{BackgroundColor: colorGrey},
			},
			Fields: "userEnteredFormat.backgroundColor",
		},
	}
}

func colorForLink(link *types.Link) *sheets.Color {
	if link.State != types.LinkStateOK {
		return colorRed
	}
	if link.NonIndexableReason != nil && *link.NonIndexableReason == string(types.KindCanonicalised) {
		return colorYellow
	}
	return colorGreen
}

// verdictRow builds the five-column row in the fixed order:
// status, response code, indexable, non-indexable reason, link-found.
func verdictRow(link *types.Link) []any {
	status := string(link.State)

	responseCode := ""
	if link.ResponseCode != nil {
		responseCode = strconv.Itoa(*link.ResponseCode)
	}

	indexable := ""
	if link.Indexable != nil {
		if *link.Indexable {
			indexable = "Yes"
		} else {
			indexable = "No"
		}
	}

	reason := ""
	if link.NonIndexableReason != nil {
		reason = *link.NonIndexableReason
	}

	linkFound := "False"
	if link.LinkClass != nil && *link.LinkClass != types.LinkClassAbsent {
		linkFound = "True"
	}
	ts := ""
	if link.CheckedAt != nil {
		ts = link.CheckedAt.Format(time.RFC3339)
	}
	linkFoundCell := fmt.Sprintf("%s (%s)", linkFound, ts)

	return []any{status, responseCode, indexable, reason, linkFoundCell}
}
