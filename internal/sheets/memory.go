package sheets

import (
	"context"
	"sync"

	"github.com/scraplink/linkaudit/internal/types"
)

// MemoryAdapter is an in-process Adapter for tests: rows are seeded
// directly rather than read from a real spreadsheet, and writes land
// in a map the test can inspect.
type MemoryAdapter struct {
	mu sync.Mutex

	Name    string
	Read_   ReadResult
	Written map[string][]*types.Link
	Formats int
}

// NewMemoryAdapter builds an adapter seeded with a sheet name and its
// source/target columns.
func NewMemoryAdapter(sheetName string, read ReadResult) *MemoryAdapter {
	return &MemoryAdapter{
		Name:    sheetName,
		Read_:   read,
		Written: make(map[string][]*types.Link),
	}
}

func (a *MemoryAdapter) GetMetadata(ctx context.Context, ref types.SpreadsheetRef) (string, error) {
	return a.Name, nil
}

func (a *MemoryAdapter) Read(ctx context.Context, ref types.SpreadsheetRef, sheetName, urlCol, targetCol, defaultTarget string) (ReadResult, error) {
	return a.Read_, nil
}

func (a *MemoryAdapter) WriteVerdicts(ctx context.Context, ref types.SpreadsheetRef, sheetName string, resultRange []string, links []*types.Link) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Written[ref.SpreadsheetID] = links
	return nil
}

func (a *MemoryAdapter) Format(ctx context.Context, ref types.SpreadsheetRef, sheetGID int64, resultRange []string, links []*types.Link) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Formats++
}
