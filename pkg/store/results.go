package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const insertBatchSize = 100

// InsertResults inserts results whose (run, test, subtest) key is not
// stored yet and returns the others as duplicates, in input order. A
// repeated key within the input is a duplicate of its first occurrence.
func (s *store) InsertResults(
	ctx context.Context, results []*Result,
) ([]*Result, error) {
	if len(results) == 0 {
		return nil, nil
	}

	var duplicates []*Result

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkSubtests(tx, results); err != nil {
			return err
		}

		existing, err := existingResultKeys(tx, results)
		if err != nil {
			return err
		}

		fresh := make([]*Result, 0, len(results))

		for _, r := range results {
			key := r.Key()
			if _, ok := existing[key]; ok {
				duplicates = append(duplicates, r)

				continue
			}

			existing[key] = struct{}{}
			fresh = append(fresh, r)
		}

		if len(fresh) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(fresh, insertBatchSize).Error; err != nil {
			return fmt.Errorf("inserting results: %w", mapError(err))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return duplicates, nil
}

// checkSubtests verifies that every subtest-level result names a stored
// subtest of its own test. SubtestID carries no foreign key, so this is
// where an orphan reference is rejected.
func checkSubtests(tx *gorm.DB, results []*Result) error {
	want := make(map[uint]uint)

	for _, r := range results {
		if r.SubtestID != NoSubtest {
			want[r.SubtestID] = r.TestID
		}
	}

	if len(want) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}

	found := make(map[uint]uint, len(ids))

	for i := 0; i < len(ids); i += lookupBatchSize {
		batch := ids[i:min(i+lookupBatchSize, len(ids))]

		var rows []Subtest
		if err := tx.Select("id, test_id").
			Where("id IN ?", batch).
			Find(&rows).Error; err != nil {
			return fmt.Errorf("looking up subtests: %w", err)
		}

		for _, st := range rows {
			found[st.ID] = st.TestID
		}
	}

	for _, r := range results {
		if r.SubtestID == NoSubtest {
			continue
		}

		if testID, ok := found[r.SubtestID]; !ok || testID != r.TestID {
			return fmt.Errorf(
				"inserting results: %w: subtest %d does not belong to test %d",
				ErrConstraintViolation, r.SubtestID, r.TestID,
			)
		}
	}

	return nil
}

// existingResultKeys loads the stored keys that could collide with results.
func existingResultKeys(
	tx *gorm.DB, results []*Result,
) (map[ResultKey]struct{}, error) {
	byRun := make(map[uint][]uint)
	for _, r := range results {
		byRun[r.RunID] = append(byRun[r.RunID], r.TestID)
	}

	keys := make(map[ResultKey]struct{}, len(results))

	for runID, testIDs := range byRun {
		testIDs = dedupe(testIDs)

		for i := 0; i < len(testIDs); i += lookupBatchSize {
			batch := testIDs[i:min(i+lookupBatchSize, len(testIDs))]

			var found []ResultKey
			if err := tx.Model(&Result{}).
				Select("run_id, test_id, subtest_id").
				Where("run_id = ? AND test_id IN ?", runID, batch).
				Scan(&found).Error; err != nil {
				return nil, fmt.Errorf("looking up stored results: %w", err)
			}

			for _, k := range found {
				keys[k] = struct{}{}
			}
		}
	}

	return keys, nil
}

// GetResult returns a result by id.
func (s *store) GetResult(ctx context.Context, id uint) (*Result, error) {
	var result Result
	if err := s.db.WithContext(ctx).
		First(&result, id).Error; err != nil {
		return nil, fmt.Errorf("getting result %d: %w", id, mapError(err))
	}

	return &result, nil
}

// DeleteRunResults removes every result of a run.
func (s *store) DeleteRunResults(
	ctx context.Context, runID uint,
) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Delete(&Result{})
	if res.Error != nil {
		return 0, fmt.Errorf(
			"deleting results of run %d: %w", runID, mapError(res.Error),
		)
	}

	return res.RowsAffected, nil
}
