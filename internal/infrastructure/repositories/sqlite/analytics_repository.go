package sqlite

import (
	"context"
	"fmt"
	"time"

	"physlab/internal/core/domain"

	"gorm.io/gorm"
)

// AnalyticsRepository runs the aggregate queries behind the reports.
type AnalyticsRepository struct {
	db *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) Overview(ctx context.Context, now time.Time) (*domain.Overview, error) {
	db := conn(ctx, r.db)
	out := &domain.Overview{}

	counts := []struct {
		model interface{}
		dst   *int64
		where string
		args  []interface{}
	}{
		{&userModel{}, &out.TotalUsers, "", nil},
		{&materialModel{}, &out.TotalMaterials, "", nil},
		{&testModel{}, &out.TotalTests, "", nil},
		{&userModel{}, &out.ActiveUsers, "last_activity >= ?", []interface{}{now.AddDate(0, 0, -7)}},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	err := db.Model(&progressModel{}).
		Select("DATE(completed_at) AS date, COUNT(*) AS count").
		Where("completed_at >= ?", now.AddDate(0, 0, -30)).
		Group("DATE(completed_at)").
		Order("date").
		Scan(&out.DailyActivity).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily activity: %w", err)
	}

	err = db.Model(&materialModel{}).
		Select("subject, COUNT(*) AS count").
		Where("status = ?", string(domain.StatusPublished)).
		Group("subject").
		Order("count DESC, subject").
		Limit(10).
		Scan(&out.PopularSubjects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate subjects: %w", err)
	}

	if out.DailyActivity == nil {
		out.DailyActivity = []domain.DailyCount{}
	}
	if out.PopularSubjects == nil {
		out.PopularSubjects = []domain.SubjectCount{}
	}
	return out, nil
}

func (r *AnalyticsRepository) Students(ctx context.Context) (*domain.StudentsReport, error) {
	db := conn(ctx, r.db)
	out := &domain.StudentsReport{}

	top, err := rankStudents(db, "", 20)
	if err != nil {
		return nil, err
	}
	out.TopStudents = top

	err = db.Model(&userModel{}).
		Select("level, COUNT(*) AS count").
		Where("role = ?", string(domain.RoleStudent)).
		Group("level").
		Order("level").
		Scan(&out.LevelDistribution).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate levels: %w", err)
	}

	err = db.Model(&userModel{}).
		Select("class, COUNT(*) AS students, COALESCE(AVG(xp), 0) AS avg_xp").
		Where("role = ? AND class <> ''", string(domain.RoleStudent)).
		Group("class").
		Order("class").
		Scan(&out.ClassActivity).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate classes: %w", err)
	}

	if out.LevelDistribution == nil {
		out.LevelDistribution = []domain.LevelBucket{}
	}
	if out.ClassActivity == nil {
		out.ClassActivity = []domain.ClassActivity{}
	}
	return out, nil
}

func (r *AnalyticsRepository) Materials(ctx context.Context) (*domain.MaterialsReport, error) {
	db := conn(ctx, r.db)
	out := &domain.MaterialsReport{}

	err := db.Table("educational_materials AS m").
		Select(`m.id, m.title, m.subject, m.views_count AS views,
			COUNT(p.completed_at) AS completions,
			COALESCE(AVG(p.progress_percentage), 0) AS avg_progress`).
		Joins("LEFT JOIN user_progress AS p ON p.material_id = m.id").
		Group("m.id").
		Order("m.views_count DESC, m.id").
		Limit(10).
		Scan(&out.PopularMaterials).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate popular materials: %w", err)
	}

	err = db.Model(&materialModel{}).
		Select("subject, COUNT(*) AS materials, COALESCE(SUM(views_count), 0) AS total_views").
		Group("subject").
		Order("materials DESC, subject").
		Scan(&out.SubjectStats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate subject stats: %w", err)
	}

	if out.PopularMaterials == nil {
		out.PopularMaterials = []domain.MaterialPopularity{}
	}
	if out.SubjectStats == nil {
		out.SubjectStats = []domain.SubjectStats{}
	}
	return out, nil
}

func (r *AnalyticsRepository) Tests(ctx context.Context) (*domain.TestsReport, error) {
	db := conn(ctx, r.db)
	out := &domain.TestsReport{}

	err := db.Table("tests AS t").
		Select(`t.id AS test_id, t.title, t.subject,
			COUNT(r.id) AS attempts,
			COALESCE(AVG(r.percentage), 0) AS avg_percentage`).
		Joins("LEFT JOIN test_results AS r ON r.test_id = t.id").
		Group("t.id").
		Order("attempts DESC, t.id").
		Scan(&out.TestResults).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tests: %w", err)
	}

	err = db.Model(&testResultModel{}).
		Select(`CASE
			WHEN percentage >= 90 THEN 'A'
			WHEN percentage >= 70 THEN 'B'
			WHEN percentage >= 50 THEN 'C'
			ELSE 'D' END AS grade, COUNT(*) AS count`).
		Group("grade").
		Order("grade").
		Scan(&out.ScoreDistribution).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate grades: %w", err)
	}

	if out.TestResults == nil {
		out.TestResults = []domain.TestAggregate{}
	}
	if out.ScoreDistribution == nil {
		out.ScoreDistribution = []domain.GradeBucket{}
	}
	return out, nil
}

func (r *AnalyticsRepository) Class(ctx context.Context, class string) (*domain.ClassReport, error) {
	db := conn(ctx, r.db)
	out := &domain.ClassReport{}

	q := db.Model(&userModel{}).
		Select(`COUNT(*) AS total_students,
			COALESCE(AVG(xp), 0) AS avg_xp,
			COALESCE(AVG(streak), 0) AS avg_streak`).
		Where("role = ?", string(domain.RoleStudent))
	if class != "" {
		q = q.Where("class = ?", class)
	}
	if err := q.Scan(&out.ClassStats).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate class: %w", err)
	}
	out.ClassStats.Class = class

	top, err := rankStudents(db, class, 10)
	if err != nil {
		return nil, err
	}
	out.TopStudents = top
	return out, nil
}
