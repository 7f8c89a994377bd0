package sqlite

import (
	"context"
	"fmt"
	"time"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
)

// UserRepository persists users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	m := newUserModel(user)
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	*user = *m.toDomain()
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var m userModel
	if err := conn(ctx, r.db).First(&m, uint(id)).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID string) (*domain.User, error) {
	var m userModel
	if err := conn(ctx, r.db).Where("telegram_id = ?", telegramID).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

// Update writes every mutable column except xp, which only AddXP changes.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	m := newUserModel(user)
	res := conn(ctx, r.db).Model(&userModel{}).Where("id = ?", m.ID).
		Select("role", "name", "surname", "birth_date", "phone", "school", "class",
			"subjects", "photo_url", "level", "streak", "last_activity").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Touch(ctx context.Context, id domain.UserID, at time.Time) error {
	res := conn(ctx, r.db).Model(&userModel{}).Where("id = ?", uint(id)).UpdateColumn("last_activity", at)
	if res.Error != nil {
		return fmt.Errorf("failed to touch user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) AddXP(ctx context.Context, id domain.UserID, delta int) error {
	if delta == 0 {
		return nil
	}
	res := conn(ctx, r.db).Model(&userModel{}).Where("id = ?", uint(id)).
		UpdateColumn("xp", gorm.Expr("xp + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to add xp: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ListStudents(ctx context.Context, q domain.StudentQuery) ([]domain.StudentSummary, int64, error) {
	query := conn(ctx, r.db).Model(&userModel{}).Where("role = ?", string(domain.RoleStudent))
	if q.Search != "" {
		like := "%" + q.Search + "%"
		query = query.Where("name LIKE ? OR surname LIKE ?", like, like)
	}
	if q.Class != "" {
		query = query.Where("class = ?", q.Class)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count students: %w", err)
	}

	var rows []userModel
	if err := applyLimit(query.Order("surname, name"), q.Offset, q.Limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list students: %w", err)
	}

	ids := make([]uint, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	completed, err := r.completedCounts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	scores, err := r.avgScores(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	out := make([]domain.StudentSummary, len(rows))
	for i := range rows {
		out[i] = domain.StudentSummary{
			User:               *rows[i].toDomain(),
			CompletedMaterials: completed[rows[i].ID],
			AvgTestScore:       scores[rows[i].ID],
		}
	}
	return out, total, nil
}

func (r *UserRepository) StudentsInGroup(ctx context.Context, group string) ([]*domain.User, error) {
	query := conn(ctx, r.db).Where("role = ?", string(domain.RoleStudent))
	if group != domain.BroadcastAll {
		query = query.Where("class = ?", group)
	}
	var rows []userModel
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list students in group: %w", err)
	}
	out := make([]*domain.User, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]domain.StudentRanking, error) {
	return rankStudents(conn(ctx, r.db), "", limit)
}

const rankingSelect = `users.id, users.name, users.surname, users.class, users.xp, users.streak, users.level,
	(SELECT COUNT(*) FROM user_progress p WHERE p.user_id = users.id AND p.completed_at IS NOT NULL) AS completed_materials`

func rankStudents(db *gorm.DB, class string, limit int) ([]domain.StudentRanking, error) {
	query := db.Table("users").Select(rankingSelect).Where("users.role = ?", string(domain.RoleStudent))
	if class != "" {
		query = query.Where("users.class = ?", class)
	}
	var out []domain.StudentRanking
	if err := applyLimit(query.Order("users.xp DESC, users.streak DESC, users.id"), 0, limit).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to rank students: %w", err)
	}
	if out == nil {
		out = []domain.StudentRanking{}
	}
	return out, nil
}

type userCount struct {
	UserID uint
	Value  float64
}

func (r *UserRepository) completedCounts(ctx context.Context, ids []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []userCount
	err := conn(ctx, r.db).Model(&progressModel{}).
		Select("user_id, COUNT(*) AS value").
		Where("user_id IN ? AND completed_at IS NOT NULL", ids).
		Group("user_id").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}
	for _, row := range rows {
		out[row.UserID] = int64(row.Value)
	}
	return out, nil
}

func (r *UserRepository) avgScores(ctx context.Context, ids []uint) (map[uint]float64, error) {
	out := make(map[uint]float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []userCount
	err := conn(ctx, r.db).Model(&testResultModel{}).
		Select("user_id, AVG(percentage) AS value").
		Where("user_id IN ?", ids).
		Group("user_id").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to average scores: %w", err)
	}
	for _, row := range rows {
		out[row.UserID] = row.Value
	}
	return out, nil
}
