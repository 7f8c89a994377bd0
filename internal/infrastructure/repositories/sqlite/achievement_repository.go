package sqlite

import (
	"context"
	"fmt"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AchievementRepository struct {
	db *gorm.DB
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

func (r *AchievementRepository) Create(ctx context.Context, a *domain.Achievement) error {
	m := &achievementModel{
		UserID:      uint(a.UserID),
		Type:        a.Type,
		Title:       a.Title,
		Description: a.Description,
		BadgeURL:    a.BadgeURL,
		XPReward:    a.XPReward,
		EarnedAt:    a.EarnedAt,
	}
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create achievement: %w", translate(err))
	}
	a.ID = m.ID
	return nil
}

func (r *AchievementRepository) Exists(ctx context.Context, userID domain.UserID, kind string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&achievementModel{}).
		Where("user_id = ? AND type = ?", uint(userID), kind).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check achievement: %w", err)
	}
	return count > 0, nil
}

func (r *AchievementRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Achievement, error) {
	var rows []achievementModel
	err := conn(ctx, r.db).Where("user_id = ?", uint(userID)).Order("earned_at DESC, id DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	out := make([]domain.Achievement, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
