package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/scraplink/linkaudit/internal/types"
)

func sampleLinks() []*types.Link {
	code := 200
	indexable := true
	class := types.LinkClassDofollow
	return []*types.Link{
		{
			ID:           "link-1",
			ProjectID:    "proj-1",
			SourceURL:    "https://example.com/page",
			TargetDomain: "target.com",
			Kind:         types.LinkKindBatch,
			State:        types.LinkStateOK,
			ResponseCode: &code,
			Indexable:    &indexable,
			LinkClass:    &class,
		},
		{
			ID:           "link-2",
			ProjectID:    "proj-1",
			SourceURL:    "https://example.com/other",
			TargetDomain: "target.com",
			Kind:         types.LinkKindBatch,
			State:        types.LinkStatePending,
		},
	}
}

func TestJSONExporterWritesArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	e, err := NewJSONExporter(path, nil)
	if err != nil {
		t.Fatalf("NewJSONExporter: %v", err)
	}
	if err := e.Write(sampleLinks()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var rows []linkRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ResponseCode != 200 || rows[0].LinkClass != string(types.LinkClassDofollow) {
		t.Errorf("row 0 not flattened correctly: %+v", rows[0])
	}
	if rows[1].ResponseCode != 0 || rows[1].LinkClass != "" {
		t.Errorf("row 1 should have zero-value optionals: %+v", rows[1])
	}
}

func TestJSONLExporterWritesOneObjectPerLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.jsonl")

	e, err := NewJSONLExporter(path, nil)
	if err != nil {
		t.Fatalf("NewJSONLExporter: %v", err)
	}
	if err := e.Write(sampleLinks()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	count := 0
	for {
		var row linkRow
		if err := dec.Decode(&row); err != nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 decoded lines, got %d", count)
	}
}

func TestCSVExporterWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")

	e, err := NewCSVExporter(path, nil)
	if err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}
	links := sampleLinks()
	if err := e.Write(links[:1]); err != nil {
		t.Fatalf("Write first batch: %v", err)
	}
	if err := e.Write(links[1:]); err != nil {
		t.Fatalf("Write second batch: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 { // header + 2 rows
		t.Fatalf("expected 3 csv records (header+2), got %d", len(records))
	}
	if records[0][0] != "project_id" {
		t.Errorf("expected header row first, got %v", records[0])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("xml", t.TempDir(), nil); err == nil {
		t.Error("expected error for unsupported format")
	}
}
