package source

import (
	"github.com/koustreak/rowsource/internal/errs"
)

// ResolveKeyIndices maps key column names to their positions in header, in
// the order the names are given. Every name must be present.
func ResolveKeyIndices(header, names []string) ([]int, error) {
	if names == nil {
		return nil, nil
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, seen := pos[h]; !seen {
			pos[h] = i
		}
	}

	indices := make([]int, 0, len(names))
	for _, name := range names {
		i, ok := pos[name]
		if !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "key column %q is not in header %q", name, header)
		}
		indices = append(indices, i)
	}
	return indices, nil
}
