package store

import (
	"context"
	"fmt"
)

// CreateRun inserts a run row. A taken name yields ErrConstraintViolation.
func (s *store) CreateRun(ctx context.Context, run *TestRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating run %q: %w", run.Name, mapError(err))
	}

	return nil
}

// GetRun returns a run by id.
func (s *store) GetRun(ctx context.Context, id uint) (*TestRun, error) {
	var run TestRun
	if err := s.db.WithContext(ctx).
		First(&run, id).Error; err != nil {
		return nil, fmt.Errorf("getting run %d: %w", id, mapError(err))
	}

	return &run, nil
}

// GetRunByName returns a run by its unique name.
func (s *store) GetRunByName(
	ctx context.Context, name string,
) (*TestRun, error) {
	var run TestRun
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&run).Error; err != nil {
		return nil, fmt.Errorf("getting run %q: %w", name, mapError(err))
	}

	return &run, nil
}

// ListRuns returns all runs in creation order.
func (s *store) ListRuns(ctx context.Context) ([]TestRun, error) {
	var runs []TestRun
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListRunSourceURLs returns the source URLs of URL-imported runs.
func (s *store) ListRunSourceURLs(ctx context.Context) ([]string, error) {
	var urls []string
	if err := s.db.WithContext(ctx).
		Model(&TestRun{}).
		Where("source_type = ? AND source_url IS NOT NULL", SourceTypeURL).
		Order("id ASC").
		Pluck("source_url", &urls).Error; err != nil {
		return nil, fmt.Errorf("listing run source urls: %w", err)
	}

	return urls, nil
}

// SetRunsEnabled toggles the enabled flag of the given runs.
func (s *store) SetRunsEnabled(
	ctx context.Context, ids []uint, enabled bool,
) error {
	if len(ids) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).
		Model(&TestRun{}).
		Where("id IN ?", ids).
		Update("enabled", enabled).Error; err != nil {
		return fmt.Errorf("switching runs: %w", err)
	}

	return nil
}

// DeleteRun removes a run row. Its results must already be gone.
func (s *store) DeleteRun(ctx context.Context, id uint) error {
	var remaining int64
	if err := s.db.WithContext(ctx).
		Model(&Result{}).
		Where("run_id = ?", id).
		Count(&remaining).Error; err != nil {
		return fmt.Errorf("counting results of run %d: %w", id, err)
	}

	if remaining > 0 {
		return fmt.Errorf(
			"deleting run %d: %w (%d left)", id, ErrRunHasResults, remaining,
		)
	}

	res := s.db.WithContext(ctx).Delete(&TestRun{}, id)
	if res.Error != nil {
		return fmt.Errorf("deleting run %d: %w", id, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("deleting run %d: %w", id, ErrNotFound)
	}

	return nil
}
