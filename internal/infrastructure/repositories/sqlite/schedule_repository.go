package sqlite

import (
	"context"
	"fmt"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) error {
	m := newScheduleModel(s)
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create schedule: %w", translate(err))
	}
	*s = *m.toDomain()
	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id domain.ScheduleID) (*domain.Schedule, error) {
	var m scheduleModel
	if err := conn(ctx, r.db).First(&m, uint(id)).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (r *ScheduleRepository) Update(ctx context.Context, s *domain.Schedule) error {
	m := newScheduleModel(s)
	res := conn(ctx, r.db).Model(&scheduleModel{}).Where("id = ?", m.ID).
		Select("title", "description", "start_time", "end_time", "type", "subject",
			"teacher", "classroom", "target_users").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("failed to update schedule: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id domain.ScheduleID) error {
	res := conn(ctx, r.db).Delete(&scheduleModel{}, uint(id))
	if res.Error != nil {
		return fmt.Errorf("failed to delete schedule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) List(ctx context.Context, f domain.ScheduleFilter) ([]*domain.Schedule, error) {
	query := conn(ctx, r.db).Order("start_time, id")
	if !f.From.IsZero() {
		query = query.Where("start_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		query = query.Where("start_time < ?", f.To)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	var rows []scheduleModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedule: %w", err)
	}
	out := make([]*domain.Schedule, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
