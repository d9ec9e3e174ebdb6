package core

import (
	"context"
	"strings"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// maxCandidates caps how many disambiguation options are offered.
const maxCandidates = 5

// Resolution is the outcome of resolving a free-text medicine name. Exactly
// one of the three shapes holds: no match (zero value), a single canonical
// Match, or several Candidates for the user to choose from.
type Resolution struct {
	Match      string
	Candidates []string
}

// Found reports whether at least one inventory entry matched.
func (r Resolution) Found() bool { return r.Match != "" || len(r.Candidates) > 0 }

// Resolver maps free-text medicine names onto canonical inventory entries
// with a case-insensitive substring match. It reads the inventory fresh on
// every call so concurrent stock edits are visible immediately.
type Resolver struct {
	Inv Inventory
}

// NewResolver constructs a Resolver over the given inventory.
func NewResolver(inv Inventory) *Resolver { return &Resolver{Inv: inv} }

// Resolve matches the name fragment against the canonical medicine list.
// Candidates preserve inventory order and are capped at maxCandidates.
func (r *Resolver) Resolve(ctx context.Context, fragment string) (Resolution, error) {
	query := strings.ToLower(strings.TrimSpace(fragment))
	if query == "" {
		return Resolution{}, nil
	}

	meds, err := r.Inv.Medicines(ctx)
	if err != nil {
		return Resolution{}, err
	}

	var names []string
	for _, m := range meds {
		if strings.Contains(strings.ToLower(m.Name), query) {
			names = append(names, m.Name)
			if len(names) == maxCandidates {
				break
			}
		}
	}

	switch len(names) {
	case 0:
		return Resolution{}, nil
	case 1:
		return Resolution{Match: names[0]}, nil
	default:
		return Resolution{Candidates: names}, nil
	}
}

// findMedicine locates one inventory row by exact normalized name first,
// falling back to substring match. Shared by the safety evaluator and the
// order executor so both resolve the same row.
func findMedicine(meds []pkg.Medicine, name string) (pkg.Medicine, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return pkg.Medicine{}, false
	}
	for _, m := range meds {
		if strings.ToLower(strings.TrimSpace(m.Name)) == query {
			return m, true
		}
	}
	for _, m := range meds {
		if strings.Contains(strings.ToLower(m.Name), query) {
			return m, true
		}
	}
	return pkg.Medicine{}, false
}
