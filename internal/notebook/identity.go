package notebook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// Resolve implements §4.4: scan ids and collect every cell whose full id or
// truncated (8-char) id starts with query. Exactly one match returns its
// index; zero is NotFound; two or more is Ambiguous with the matching
// indices so the caller can retry with a longer prefix.
func Resolve(query string, ids []string) (int, error) {
	var matches []int
	for i, id := range ids {
		if id == "" {
			continue
		}
		if strings.HasPrefix(id, query) || strings.HasPrefix(TruncatedID(id), query) {
			matches = append(matches, i)
		}
	}

	switch len(matches) {
	case 0:
		return 0, &notebookerr.NotFound{What: fmt.Sprintf("cell %q", query)}
	case 1:
		return matches[0], nil
	default:
		return 0, &notebookerr.Ambiguous{Query: query, Indices: matches}
	}
}

// ResolveMany returns the sorted, de-duplicated union of indices matched by
// each query (§4.4).
func ResolveMany(queries []string, ids []string) ([]int, error) {
	set := make(map[int]struct{}, len(queries))
	for _, q := range queries {
		idx, err := Resolve(q, ids)
		if err != nil {
			return nil, err
		}
		set[idx] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}
