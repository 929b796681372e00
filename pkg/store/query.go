package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// TestType restricts result rows by level.
type TestType string

// Test types.
const (
	TestTypeBoth    TestType = "both"
	TestTypeTest    TestType = "test"
	TestTypeSubtest TestType = "subtest"
)

// StatusCond matches a (test, subtest) group when the result of RunID has
// one of Statuses. Negate inverts the match.
type StatusCond struct {
	RunID    uint
	Negate   bool
	Statuses []string
}

// PathAnchor selects which end of the test name a PathCond matches.
type PathAnchor string

// Path anchors.
const (
	AnchorStart PathAnchor = "start"
	AnchorEnd   PathAnchor = "end"
)

// PathCond matches test names beginning or ending with Path. Include
// conditions are ORed, exclude conditions are ANDed.
type PathCond struct {
	Path    string
	Anchor  PathAnchor
	Exclude bool
}

// ResultQuery selects (test, subtest) groups across a set of runs.
// Zero test id bounds mean unbounded.
type ResultQuery struct {
	RunIDs    []uint
	MinTestID uint
	MaxTestID uint
	Limit     int
	Status    []StatusCond
	Paths     []PathCond
	Type      TestType
}

// ResultRow is one result joined with its test, subtest and comment.
// SubtestID is NoSubtest for test-level results.
type ResultRow struct {
	ResultID     uint
	RunID        uint
	TestID       uint
	TestName     string
	SubtestID    uint
	SubtestTitle string
	Status       string
	Expected     string
	Message      string
	CommentID    uint
}

// SelectPageTestIDs returns the ids of up to Limit distinct tests with at
// least one matching group, ascending. With only MaxTestID set the page
// ends right before that id.
func (s *store) SelectPageTestIDs(
	ctx context.Context, q *ResultQuery,
) ([]uint, error) {
	if len(q.RunIDs) == 0 {
		return nil, nil
	}

	where, args := q.conditions()

	backward := q.MaxTestID != 0 && q.MinTestID == 0

	if q.MinTestID != 0 {
		where = append(where, "r.test_id > ?")
		args = append(args, q.MinTestID)
	}

	if q.MaxTestID != 0 {
		where = append(where, "r.test_id < ?")
		args = append(args, q.MaxTestID)
	}

	order := "ASC"
	if backward {
		order = "DESC"
	}

	sql := "SELECT DISTINCT r.test_id FROM results AS r" +
		" JOIN tests AS t ON t.id = r.test_id" +
		" WHERE " + strings.Join(where, " AND ") +
		" ORDER BY r.test_id " + order

	if q.Limit > 0 {
		sql += " LIMIT ?"
		args = append(args, q.Limit)
	}

	var ids []uint
	if err := s.db.WithContext(ctx).
		Raw(sql, args...).
		Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("selecting page test ids: %w", err)
	}

	if backward {
		slices.Reverse(ids)
	}

	return ids, nil
}

// SelectResultRows returns every row of the matching groups of the given
// tests, ordered by test id, subtest id and run id.
func (s *store) SelectResultRows(
	ctx context.Context, q *ResultQuery, testIDs []uint,
) ([]ResultRow, error) {
	if len(q.RunIDs) == 0 || len(testIDs) == 0 {
		return nil, nil
	}

	where, args := q.conditions()
	where = append(where, "r.test_id IN ?")
	args = append(args, testIDs)

	sql := "SELECT r.id AS result_id, r.run_id, r.test_id," +
		" t.name AS test_name, r.subtest_id," +
		" COALESCE(st.title, '') AS subtest_title," +
		" r.status, r.expected, r.message," +
		" COALESCE(c.id, 0) AS comment_id" +
		" FROM results AS r" +
		" JOIN tests AS t ON t.id = r.test_id" +
		" LEFT JOIN subtests AS st ON st.id = r.subtest_id" +
		" LEFT JOIN comments AS c ON c.result_id = r.id" +
		" WHERE " + strings.Join(where, " AND ") +
		" ORDER BY r.test_id ASC, r.subtest_id ASC, r.run_id ASC"

	var rows []ResultRow
	if err := s.db.WithContext(ctx).
		Raw(sql, args...).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("selecting result rows: %w", err)
	}

	return rows, nil
}

// conditions builds the group filter shared by both page queries. Every
// condition depends only on the (test, subtest) group of r, so a group
// either matches with all its rows or not at all.
func (q *ResultQuery) conditions() ([]string, []any) {
	where := []string{"r.run_id IN ?"}
	args := []any{q.RunIDs}

	for _, c := range q.Status {
		cond := "1 = 0"

		if len(c.Statuses) > 0 {
			cond = "EXISTS (SELECT 1 FROM results AS f" +
				" WHERE f.test_id = r.test_id AND f.subtest_id = r.subtest_id" +
				" AND f.run_id = ? AND f.status IN ?)"
			args = append(args, c.RunID, c.Statuses)
		}

		if c.Negate {
			cond = "NOT (" + cond + ")"
		}

		where = append(where, cond)
	}

	var (
		includes    []string
		includeArgs []any
	)

	for _, p := range q.Paths {
		cond, arg := p.condition()

		if p.Exclude {
			where = append(where, "NOT ("+cond+")")
			args = append(args, arg...)

			continue
		}

		includes = append(includes, "("+cond+")")
		includeArgs = append(includeArgs, arg...)
	}

	if len(includes) > 0 {
		where = append(where, "("+strings.Join(includes, " OR ")+")")
		args = append(args, includeArgs...)
	}

	switch q.Type {
	case TestTypeTest:
		where = append(where, "r.subtest_id = 0")
	case TestTypeSubtest:
		where = append(where, "r.subtest_id <> 0")
	}

	return where, args
}

// condition returns an anchored, case-sensitive match on the test name.
func (p PathCond) condition() (string, []any) {
	n := utf8.RuneCountInString(p.Path)

	if p.Anchor == AnchorEnd {
		return "length(t.name) >= ? AND substr(t.name, length(t.name) - ? + 1) = ?",
			[]any{n, n, p.Path}
	}

	return "substr(t.name, 1, ?) = ?", []any{n, p.Path}
}
