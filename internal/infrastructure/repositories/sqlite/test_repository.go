package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TestRepository persists tests and their questions.
type TestRepository struct {
	db *gorm.DB
}

func NewTestRepository(db *gorm.DB) *TestRepository {
	return &TestRepository{db: db}
}

func (r *TestRepository) Create(ctx context.Context, t *domain.Test) error {
	m := &testModel{
		Title:      t.Title,
		Subject:    t.Subject,
		Questions:  t.Questions,
		TimeLimit:  t.TimeLimit,
		Difficulty: t.Difficulty,
		AuthorID:   uint(t.AuthorID),
	}
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create test: %w", translate(err))
	}
	t.ID = domain.TestID(m.ID)
	t.CreatedAt = m.CreatedAt
	return nil
}

func (r *TestRepository) GetByID(ctx context.Context, id domain.TestID) (*domain.Test, error) {
	var m testModel
	if err := conn(ctx, r.db).First(&m, uint(id)).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (r *TestRepository) List(ctx context.Context, subject string) ([]*domain.Test, error) {
	query := conn(ctx, r.db).Order("created_at DESC, id DESC")
	if subject != "" {
		query = query.Where("subject = ?", subject)
	}
	var rows []testModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	out := make([]*domain.Test, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// TestResultRepository persists scored attempts.
type TestResultRepository struct {
	db *gorm.DB
}

func NewTestResultRepository(db *gorm.DB) *TestResultRepository {
	return &TestResultRepository{db: db}
}

func (r *TestResultRepository) Create(ctx context.Context, res *domain.TestResult) error {
	m := &testResultModel{
		UserID:         uint(res.UserID),
		TestID:         uint(res.TestID),
		Score:          res.Score,
		TotalQuestions: res.TotalQuestions,
		Percentage:     res.Percentage,
		TimeTaken:      res.TimeTaken,
		Answers:        res.Answers,
		XPAwarded:      res.XPAwarded,
		CompletedAt:    res.CompletedAt,
	}
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create test result: %w", translate(err))
	}
	res.ID = m.ID
	return nil
}

func (r *TestResultRepository) BestPercentage(ctx context.Context, userID domain.UserID, testID domain.TestID) (int, bool, error) {
	var best sql.NullInt64
	err := conn(ctx, r.db).Model(&testResultModel{}).
		Select("MAX(percentage)").
		Where("user_id = ? AND test_id = ?", uint(userID), uint(testID)).
		Row().Scan(&best)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read best result: %w", err)
	}
	return int(best.Int64), best.Valid, nil
}

func (r *TestResultRepository) ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.TestResult, error) {
	query := conn(ctx, r.db).Preload("Test").Where("user_id = ?", uint(userID)).Order("completed_at DESC, id DESC")
	var rows []testResultModel
	if err := applyLimit(query, 0, limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list test results: %w", err)
	}
	out := make([]domain.TestResult, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
