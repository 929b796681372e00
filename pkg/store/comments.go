package store

import (
	"context"
	"fmt"
)

// GetComment returns the comment attached to a result.
func (s *store) GetComment(
	ctx context.Context, resultID uint,
) (*Comment, error) {
	var comment Comment
	if err := s.db.WithContext(ctx).
		Where("result_id = ?", resultID).
		First(&comment).Error; err != nil {
		return nil, fmt.Errorf(
			"getting comment for result %d: %w", resultID, mapError(err),
		)
	}

	return &comment, nil
}

// CreateComment attaches a comment to a result. A result holds at most
// one comment, a second one yields ErrConstraintViolation.
func (s *store) CreateComment(
	ctx context.Context, resultID uint, text string,
) error {
	if err := s.db.WithContext(ctx).
		Create(&Comment{ResultID: resultID, Text: text}).Error; err != nil {
		return fmt.Errorf(
			"creating comment for result %d: %w", resultID, mapError(err),
		)
	}

	return nil
}

// UpdateComment replaces the text of an existing comment.
func (s *store) UpdateComment(
	ctx context.Context, resultID uint, text string,
) error {
	res := s.db.WithContext(ctx).
		Model(&Comment{}).
		Where("result_id = ?", resultID).
		Update("text", text)
	if res.Error != nil {
		return fmt.Errorf(
			"updating comment for result %d: %w", resultID, res.Error,
		)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf(
			"updating comment for result %d: %w", resultID, ErrNotFound,
		)
	}

	return nil
}

// DeleteComment removes the comment of a result, if any.
func (s *store) DeleteComment(ctx context.Context, resultID uint) error {
	if err := s.db.WithContext(ctx).
		Where("result_id = ?", resultID).
		Delete(&Comment{}).Error; err != nil {
		return fmt.Errorf(
			"deleting comment for result %d: %w", resultID, err,
		)
	}

	return nil
}

// DeleteRunComments removes the comments on every result of a run.
func (s *store) DeleteRunComments(
	ctx context.Context, runID uint,
) (int64, error) {
	resultIDs := s.db.Model(&Result{}).
		Select("id").
		Where("run_id = ?", runID)

	res := s.db.WithContext(ctx).
		Where("result_id IN (?)", resultIDs).
		Delete(&Comment{})
	if res.Error != nil {
		return 0, fmt.Errorf(
			"deleting comments of run %d: %w", runID, res.Error,
		)
	}

	return res.RowsAffected, nil
}
