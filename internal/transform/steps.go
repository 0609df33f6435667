package transform

import (
	"context"
	"strings"

	"github.com/JonMunkholm/filecleaner/internal/tabular"
)

// ContextCheckInterval is how often (in rows) steps check for cancellation.
const ContextCheckInterval = 1000

// DefaultSuffix is appended to every column name by the default pipeline.
const DefaultSuffix = "_CHANGED"

// DropDuplicates removes rows equal, cell for cell, to an earlier row. The
// first occurrence is kept. Text is compared without surrounding whitespace
// so that rows which TrimCells would make identical count as duplicates.
type DropDuplicates struct{}

func (DropDuplicates) Name() string { return "drop_duplicates" }

func (DropDuplicates) Apply(ctx context.Context, ds *tabular.Dataset, stats *Stats) error {
	seen := make(map[string]struct{}, ds.NumRows())
	var err error
	removed := ds.Filter(func(i int) bool {
		if i%ContextCheckInterval == 0 && err == nil {
			err = ctx.Err()
		}
		key := ds.RowKey(i, strings.TrimSpace)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
	if err != nil {
		return err
	}
	stats.DuplicatesRemoved += removed
	return nil
}

// DropEmptyRows removes rows in which every cell is null.
type DropEmptyRows struct{}

func (DropEmptyRows) Name() string { return "drop_empty_rows" }

func (DropEmptyRows) Apply(ctx context.Context, ds *tabular.Dataset, stats *Stats) error {
	if ds.NumCols() == 0 {
		return nil
	}
	removed := ds.Filter(func(i int) bool {
		for c := range ds.Columns {
			if !ds.Columns[c].Cells[i].IsNull() {
				return true
			}
		}
		return false
	})
	stats.EmptyRowsRemoved += removed
	return ctx.Err()
}

// RenamePolicy maps an original column name to its cleaned name.
type RenamePolicy func(name string) string

// SuffixPolicy trims the name and appends suffix unless it is already there,
// so applying it twice gives the same result as applying it once.
func SuffixPolicy(suffix string) RenamePolicy {
	return func(name string) string {
		name = strings.TrimSpace(name)
		if strings.HasSuffix(name, suffix) {
			return name
		}
		return name + suffix
	}
}

// RenameColumns rewrites every column name through Policy.
type RenameColumns struct {
	Policy RenamePolicy
}

func (RenameColumns) Name() string { return "rename_columns" }

func (r RenameColumns) Apply(_ context.Context, ds *tabular.Dataset, stats *Stats) error {
	policy := r.Policy
	if policy == nil {
		policy = SuffixPolicy(DefaultSuffix)
	}
	for i := range ds.Columns {
		renamed := policy(ds.Columns[i].Name)
		if renamed != ds.Columns[i].Name {
			ds.Columns[i].Name = renamed
			stats.ColumnsRenamed++
		}
	}
	return nil
}

// TrimCells strips leading and trailing whitespace from text cells. Other
// cells are left as they are. A text cell that trims to nothing stays text.
type TrimCells struct{}

func (TrimCells) Name() string { return "trim_cells" }

func (TrimCells) Apply(ctx context.Context, ds *tabular.Dataset, stats *Stats) error {
	for c := range ds.Columns {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells := ds.Columns[c].Cells
		for i := range cells {
			if cells[i].Kind != tabular.Text {
				continue
			}
			trimmed := strings.TrimSpace(cells[i].Str)
			if trimmed != cells[i].Str {
				cells[i].Str = trimmed
				stats.CellsTrimmed++
			}
		}
	}
	return nil
}
