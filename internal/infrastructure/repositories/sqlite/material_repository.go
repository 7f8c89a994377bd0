package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaterialRepository persists educational materials with optimistic versioning.
type MaterialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

func (r *MaterialRepository) Create(ctx context.Context, material *domain.Material) error {
	if material.Version == 0 {
		material.Version = 1
	}
	m := newMaterialModel(material)
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create material: %w", translate(err))
	}
	material.ID = domain.MaterialID(m.ID)
	material.CreatedAt = m.CreatedAt
	material.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *MaterialRepository) GetByID(ctx context.Context, id domain.MaterialID) (*domain.Material, error) {
	var m materialModel
	if err := conn(ctx, r.db).Preload("Author").First(&m, uint(id)).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (r *MaterialRepository) ListPublished(ctx context.Context, f domain.MaterialFilter) ([]*domain.Material, int64, error) {
	query := conn(ctx, r.db).Model(&materialModel{}).Where("status = ?", string(domain.StatusPublished))
	if f.Subject != "" {
		query = query.Where("subject = ?", f.Subject)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count materials: %w", err)
	}

	var rows []materialModel
	err := applyLimit(query.Preload("Author").Order("created_at DESC, id DESC"), f.Offset, f.Limit).Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list materials: %w", err)
	}
	return toMaterials(rows), total, nil
}

func (r *MaterialRepository) ListByAuthor(ctx context.Context, f domain.AuthorFilter) ([]*domain.Material, error) {
	query := conn(ctx, r.db).Preload("Author").Where("author_id = ?", uint(f.AuthorID))
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	if f.Subject != "" {
		query = query.Where("subject = ?", f.Subject)
	}
	var rows []materialModel
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list author materials: %w", err)
	}
	return toMaterials(rows), nil
}

func (r *MaterialRepository) UpdateVersioned(ctx context.Context, material *domain.Material, expected int) error {
	return traced(ctx, "update", materialModel{}.TableName(), func(ctx context.Context) error {
		return r.updateVersioned(ctx, material, expected)
	})
}

func (r *MaterialRepository) updateVersioned(ctx context.Context, material *domain.Material, expected int) error {
	m := newMaterialModel(material)
	m.Version = expected + 1

	db := conn(ctx, r.db)
	res := db.Model(&materialModel{}).
		Where("id = ? AND version = ?", m.ID, expected).
		Select("title", "description", "content", "type", "subject", "difficulty", "duration",
			"file_url", "tags", "status", "published_at", "version", "updated_at").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("failed to update material: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&materialModel{}).Where("id = ?", m.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check material: %w", err)
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}
	material.Version = m.Version
	material.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *MaterialRepository) IncrementViews(ctx context.Context, id domain.MaterialID) error {
	res := conn(ctx, r.db).Model(&materialModel{}).Where("id = ?", uint(id)).
		UpdateColumn("views_count", gorm.Expr("views_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("failed to count view: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MaterialRepository) DeleteCascade(ctx context.Context, id domain.MaterialID) error {
	return traced(ctx, "delete", materialModel{}.TableName(), func(ctx context.Context) error {
		return r.deleteCascade(ctx, id)
	})
}

func (r *MaterialRepository) deleteCascade(ctx context.Context, id domain.MaterialID) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("material_id = ?", uint(id)).Delete(&progressModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete material progress: %w", err)
		}
		res := tx.Delete(&materialModel{}, uint(id))
		if res.Error != nil {
			return fmt.Errorf("failed to delete material: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *MaterialRepository) Stats(ctx context.Context, id domain.MaterialID) (*domain.MaterialStats, error) {
	db := conn(ctx, r.db)

	var views int
	if err := db.Model(&materialModel{}).Select("views_count").Where("id = ?", uint(id)).Row().Scan(&views); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read views: %w", err)
	}

	stats := domain.MaterialStats{TotalViews: views}
	err := db.Model(&progressModel{}).
		Select(`COUNT(completed_at) AS completed_count,
			COALESCE(AVG(progress_percentage), 0) AS avg_progress,
			COALESCE(AVG(time_spent), 0) AS avg_time_spent`).
		Where("material_id = ?", uint(id)).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate material progress: %w", err)
	}
	stats.TotalViews = views
	return &stats, nil
}

func toMaterials(rows []materialModel) []*domain.Material {
	out := make([]*domain.Material, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}
