package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// lookupBatchSize bounds the number of bound parameters per statement.
const lookupBatchSize = 500

// GetOrCreateTests returns the ids of the named tests, inserting the ones
// that do not exist yet. Each batch is a single insert-if-absent statement
// followed by a lookup, so concurrent imports sharing test names never
// race on the unique key.
func (s *store) GetOrCreateTests(
	ctx context.Context, names []string,
) (map[string]uint, error) {
	unique := dedupe(names)
	ids := make(map[string]uint, len(unique))

	for i := 0; i < len(unique); i += lookupBatchSize {
		batch := unique[i:min(i+lookupBatchSize, len(unique))]

		rows := make([]Test, 0, len(batch))
		for _, name := range batch {
			rows = append(rows, Test{Name: name})
		}

		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).
			Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("inserting tests: %w", mapError(err))
		}

		var found []Test
		if err := s.db.WithContext(ctx).
			Where("name IN ?", batch).
			Find(&found).Error; err != nil {
			return nil, fmt.Errorf("looking up tests: %w", err)
		}

		for _, t := range found {
			ids[t.Name] = t.ID
		}
	}

	if len(ids) != len(unique) {
		return nil, fmt.Errorf(
			"resolved %d of %d tests", len(ids), len(unique),
		)
	}

	return ids, nil
}

// GetOrCreateSubtests is GetOrCreateTests keyed by (test id, title).
func (s *store) GetOrCreateSubtests(
	ctx context.Context, keys []SubtestKey,
) (map[SubtestKey]uint, error) {
	unique := dedupe(keys)
	ids := make(map[SubtestKey]uint, len(unique))

	for i := 0; i < len(unique); i += lookupBatchSize {
		batch := unique[i:min(i+lookupBatchSize, len(unique))]

		rows := make([]Subtest, 0, len(batch))
		testIDs := make([]uint, 0, len(batch))
		titles := make([]string, 0, len(batch))

		for _, k := range batch {
			rows = append(rows, Subtest{TestID: k.TestID, Title: k.Title})
			testIDs = append(testIDs, k.TestID)
			titles = append(titles, k.Title)
		}

		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "test_id"}, {Name: "title"},
				},
				DoNothing: true,
			}).
			Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("inserting subtests: %w", mapError(err))
		}

		var found []Subtest
		if err := s.db.WithContext(ctx).
			Where("test_id IN ? AND title IN ?", dedupe(testIDs), dedupe(titles)).
			Find(&found).Error; err != nil {
			return nil, fmt.Errorf("looking up subtests: %w", err)
		}

		wanted := make(map[SubtestKey]struct{}, len(batch))
		for _, k := range batch {
			wanted[k] = struct{}{}
		}

		for _, st := range found {
			key := SubtestKey{TestID: st.TestID, Title: st.Title}
			if _, ok := wanted[key]; ok {
				ids[key] = st.ID
			}
		}
	}

	if len(ids) != len(unique) {
		return nil, fmt.Errorf(
			"resolved %d of %d subtests", len(ids), len(unique),
		)
	}

	return ids, nil
}

// dedupe returns the distinct values of in, keeping first-seen order.
func dedupe[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))

	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}
