package sqlite

import (
	"context"
	"fmt"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressRepository persists per-student material progress.
type ProgressRepository struct {
	db        *gorm.DB
	materials *MaterialRepository
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db, materials: NewMaterialRepository(db)}
}

func (r *ProgressRepository) Get(ctx context.Context, userID domain.UserID, materialID domain.MaterialID) (*domain.Progress, error) {
	var m progressModel
	err := conn(ctx, r.db).Where("user_id = ? AND material_id = ?", uint(userID), uint(materialID)).First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

// Save inserts a new row or overwrites an existing one.
func (r *ProgressRepository) Save(ctx context.Context, p *domain.Progress) error {
	m := newProgressModel(p)
	db := conn(ctx, r.db).Omit(clause.Associations)
	var err error
	if m.ID == 0 {
		err = db.Create(m).Error
	} else {
		err = db.Save(m).Error
	}
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", translate(err))
	}
	p.ID = m.ID
	return nil
}

func (r *ProgressRepository) Activity(ctx context.Context, userID domain.UserID, limit int) ([]domain.Activity, error) {
	query := conn(ctx, r.db).Table("user_progress AS p").
		Select(`p.material_id, m.title, m.subject, p.progress_percentage, p.time_spent,
			p.last_accessed, p.completed_at`).
		Joins("JOIN educational_materials AS m ON m.id = p.material_id").
		Where("p.user_id = ?", uint(userID)).
		Order("p.last_accessed DESC")

	var out []domain.Activity
	if err := applyLimit(query, 0, limit).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	if out == nil {
		out = []domain.Activity{}
	}
	return out, nil
}

func (r *ProgressRepository) SubjectSummary(ctx context.Context, userID domain.UserID) ([]domain.SubjectProgress, error) {
	var out []domain.SubjectProgress
	err := conn(ctx, r.db).Table("user_progress AS p").
		Select(`m.subject AS subject,
			COUNT(*) AS started,
			COUNT(p.completed_at) AS completed,
			COALESCE(AVG(p.progress_percentage), 0) AS avg_progress,
			COALESCE(SUM(p.time_spent), 0) AS time_spent`).
		Joins("JOIN educational_materials AS m ON m.id = p.material_id").
		Where("p.user_id = ?", uint(userID)).
		Group("m.subject").
		Order("m.subject").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarise progress: %w", err)
	}
	if out == nil {
		out = []domain.SubjectProgress{}
	}
	return out, nil
}

func (r *ProgressRepository) MaterialsForStudent(ctx context.Context, userID domain.UserID, f domain.MaterialFilter) ([]domain.MaterialWithProgress, int64, error) {
	materials, total, err := r.materials.ListPublished(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	out := make([]domain.MaterialWithProgress, len(materials))
	if len(materials) == 0 {
		return out, total, nil
	}

	ids := make([]uint, len(materials))
	for i, m := range materials {
		ids[i] = uint(m.ID)
	}
	var rows []progressModel
	err = conn(ctx, r.db).Where("user_id = ? AND material_id IN ?", uint(userID), ids).Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load progress: %w", err)
	}
	byMaterial := make(map[uint]*progressModel, len(rows))
	for i := range rows {
		byMaterial[rows[i].MaterialID] = &rows[i]
	}

	for i, m := range materials {
		out[i] = domain.MaterialWithProgress{Material: *m}
		if p, ok := byMaterial[uint(m.ID)]; ok {
			out[i].ProgressPercentage = p.ProgressPercentage
			out[i].TimeSpent = p.TimeSpent
			out[i].CompletedAt = p.CompletedAt
		}
	}
	return out, total, nil
}
