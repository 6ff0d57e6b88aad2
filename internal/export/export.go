// Package export writes audited link rows to a file, adapted from the
// teacher's scraped-item file writers to this system's Link shape —
// useful for a one-off report independent of the repository's own
// query surface.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/scraplink/linkaudit/internal/types"
)

// Exporter writes links to a file. The JSON exporter buffers rows and
// writes the whole array at Close; the JSONL and CSV exporters write
// each row as Write is called.
type Exporter interface {
	Name() string
	Write(links []*types.Link) error
	Close() error
}

// New builds the exporter named by format (json, jsonl, csv), writing
// to outputDir/results.<ext>.
func New(format, outputDir string, logger *slog.Logger) (Exporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(filepath.Join(outputDir, "results.json"), logger)
	case "jsonl":
		return NewJSONLExporter(filepath.Join(outputDir, "results.jsonl"), logger)
	case "csv":
		return NewCSVExporter(filepath.Join(outputDir, "results.csv"), logger)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// linkRow is the flattened, export-friendly view of a Link — pointer
// fields resolved to their zero value rather than left as *T so both
// the JSON and CSV writers share one shape.
type linkRow struct {
	ProjectID          string `json:"projectId"`
	SourceURL          string `json:"sourceUrl"`
	TargetDomain       string `json:"targetDomain"`
	Kind               string `json:"kind"`
	State              string `json:"state"`
	ResponseCode       int    `json:"responseCode"`
	Indexable          bool   `json:"indexable"`
	LinkClass          string `json:"linkClass"`
	CanonicalURL       string `json:"canonicalUrl,omitempty"`
	NonIndexableReason string `json:"nonIndexableReason,omitempty"`
	CheckedAt          string `json:"checkedAt,omitempty"`
}

func flatten(l *types.Link) linkRow {
	row := linkRow{
		ProjectID:    l.ProjectID,
		SourceURL:    l.SourceURL,
		TargetDomain: l.TargetDomain,
		Kind:         string(l.Kind),
		State:        string(l.State),
	}
	if l.ResponseCode != nil {
		row.ResponseCode = *l.ResponseCode
	}
	if l.Indexable != nil {
		row.Indexable = *l.Indexable
	}
	if l.LinkClass != nil {
		row.LinkClass = string(*l.LinkClass)
	}
	if l.CanonicalURL != nil {
		row.CanonicalURL = *l.CanonicalURL
	}
	if l.NonIndexableReason != nil {
		row.NonIndexableReason = *l.NonIndexableReason
	}
	if l.CheckedAt != nil {
		row.CheckedAt = l.CheckedAt.Format(time.RFC3339)
	}
	return row
}

// csvHeader and csvFields must stay in sync: one column per linkRow field.
var csvHeader = []string{
	"project_id", "source_url", "target_domain", "kind", "state",
	"response_code", "indexable", "link_class", "canonical_url",
	"non_indexable_reason", "checked_at",
}

func csvFields(row linkRow) []string {
	return []string{
		row.ProjectID, row.SourceURL, row.TargetDomain, row.Kind, row.State,
		fmt.Sprintf("%d", row.ResponseCode), fmt.Sprintf("%v", row.Indexable), row.LinkClass, row.CanonicalURL,
		row.NonIndexableReason, row.CheckedAt,
	}
}

// --- JSON ---

// JSONExporter buffers every row and writes a single JSON array at Close.
type JSONExporter struct {
	path   string
	rows   []linkRow
	logger *slog.Logger
}

// NewJSONExporter opens a JSON exporter writing to path.
func NewJSONExporter(path string, logger *slog.Logger) (*JSONExporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONExporter{path: path, logger: logger.With("component", "export.json")}, nil
}

func (e *JSONExporter) Name() string { return "json" }

func (e *JSONExporter) Write(links []*types.Link) error {
	for _, l := range links {
		e.rows = append(e.rows, flatten(l))
	}
	return nil
}

func (e *JSONExporter) Close() error {
	f, err := os.Create(e.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.rows); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	e.logger.Info("json written", "path", e.path, "rows", len(e.rows))
	return nil
}

// --- JSONL ---

// JSONLExporter streams one JSON object per line as rows arrive.
type JSONLExporter struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	count  int
	logger *slog.Logger
}

// NewJSONLExporter opens a JSONL exporter writing to path.
func NewJSONLExporter(path string, logger *slog.Logger) (*JSONLExporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &JSONLExporter{path: path, file: f, enc: json.NewEncoder(f), logger: logger.With("component", "export.jsonl")}, nil
}

func (e *JSONLExporter) Name() string { return "jsonl" }

func (e *JSONLExporter) Write(links []*types.Link) error {
	for _, l := range links {
		if err := e.enc.Encode(flatten(l)); err != nil {
			return fmt.Errorf("encode jsonl row: %w", err)
		}
		e.count++
	}
	return nil
}

func (e *JSONLExporter) Close() error {
	e.logger.Info("jsonl written", "path", e.path, "rows", e.count)
	return e.file.Close()
}

// --- CSV ---

// CSVExporter streams CSV rows, writing the fixed header once.
type CSVExporter struct {
	path        string
	file        *os.File
	writer      *csv.Writer
	wroteHeader bool
	count       int
	logger      *slog.Logger
}

// NewCSVExporter opens a CSV exporter writing to path.
func NewCSVExporter(path string, logger *slog.Logger) (*CSVExporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &CSVExporter{path: path, file: f, writer: csv.NewWriter(f), logger: logger.With("component", "export.csv")}, nil
}

func (e *CSVExporter) Name() string { return "csv" }

func (e *CSVExporter) Write(links []*types.Link) error {
	if !e.wroteHeader {
		if err := e.writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		e.wroteHeader = true
	}
	for _, l := range links {
		if err := e.writer.Write(csvFields(flatten(l))); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		e.count++
	}
	e.writer.Flush()
	return e.writer.Error()
}

func (e *CSVExporter) Close() error {
	e.writer.Flush()
	e.logger.Info("csv written", "path", e.path, "rows", e.count)
	return e.file.Close()
}
