package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/wptview/pkg/store"
)

// ErrInvalidFilter is returned for filters that cannot be evaluated.
var ErrInvalidFilter = errors.New("invalid filter")

// Equality selects whether a status filter keeps or drops matching rows.
type Equality string

// Equalities.
const (
	EqualityIs    Equality = "is"
	EqualityIsNot Equality = "is_not"
)

// PathChoice is one of include_start, include_end, exclude_start and
// exclude_end. The colon spelling ("include:start") is accepted too.
type PathChoice string

// Path choices.
const (
	IncludeStart PathChoice = "include_start"
	IncludeEnd   PathChoice = "include_end"
	ExcludeStart PathChoice = "exclude_start"
	ExcludeEnd   PathChoice = "exclude_end"
)

// StatusFilter matches rows whose result in Run has one of Status.
type StatusFilter struct {
	Run      string   `json:"run" mapstructure:"run"`
	Equality Equality `json:"equality" mapstructure:"equality"`
	Status   []string `json:"status" mapstructure:"status"`
}

// PathFilter matches rows by test name.
type PathFilter struct {
	Choice PathChoice `json:"choice" mapstructure:"choice"`
	Path   string     `json:"path" mapstructure:"path"`
}

// TestTypeFilter restricts rows to test-level, subtest-level or both.
type TestTypeFilter struct {
	Type store.TestType `json:"type" mapstructure:"type"`
}

// Filter is the full result filter. Status filters are ANDed.
type Filter struct {
	Status   []StatusFilter `json:"status" mapstructure:"status"`
	Path     []PathFilter   `json:"path" mapstructure:"path"`
	TestType TestTypeFilter `json:"test_type" mapstructure:"test_type"`
}

// pathCond converts a path filter into its store condition.
func (p PathFilter) pathCond() (store.PathCond, error) {
	choice := strings.ReplaceAll(strings.ToLower(string(p.Choice)), ":", "_")

	switch PathChoice(choice) {
	case IncludeStart:
		return store.PathCond{Path: p.Path, Anchor: store.AnchorStart}, nil
	case IncludeEnd:
		return store.PathCond{Path: p.Path, Anchor: store.AnchorEnd}, nil
	case ExcludeStart:
		return store.PathCond{Path: p.Path, Anchor: store.AnchorStart, Exclude: true}, nil
	case ExcludeEnd:
		return store.PathCond{Path: p.Path, Anchor: store.AnchorEnd, Exclude: true}, nil
	default:
		return store.PathCond{}, fmt.Errorf(
			"%w: unknown path choice %q", ErrInvalidFilter, p.Choice,
		)
	}
}

// statusCond converts a status filter given the ids of all known runs by
// name. A filter on an unknown run refers to no results.
func (s StatusFilter) statusCond(runIDs map[string]uint) (store.StatusCond, error) {
	var negate bool

	switch s.Equality {
	case EqualityIs, "":
	case EqualityIsNot:
		negate = true
	default:
		return store.StatusCond{}, fmt.Errorf(
			"%w: unknown equality %q", ErrInvalidFilter, s.Equality,
		)
	}

	return store.StatusCond{
		RunID:    runIDs[s.Run],
		Negate:   negate,
		Statuses: s.Status,
	}, nil
}

func testType(f TestTypeFilter) (store.TestType, error) {
	switch f.Type {
	case "", store.TestTypeBoth:
		return store.TestTypeBoth, nil
	case store.TestTypeTest, store.TestTypeSubtest:
		return f.Type, nil
	default:
		return "", fmt.Errorf("%w: unknown test type %q", ErrInvalidFilter, f.Type)
	}
}
