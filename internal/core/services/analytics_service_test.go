package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"physlab/internal/core/domain"
	apperrors "physlab/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingAnalytics struct {
	overviews int32
	fail      bool
}

func (c *countingAnalytics) Overview(context.Context, time.Time) (*domain.Overview, error) {
	atomic.AddInt32(&c.overviews, 1)
	if c.fail {
		return nil, errors.New("database is locked")
	}
	return &domain.Overview{TotalUsers: 3}, nil
}

func (c *countingAnalytics) Students(context.Context) (*domain.StudentsReport, error) {
	return &domain.StudentsReport{}, nil
}

func (c *countingAnalytics) Materials(context.Context) (*domain.MaterialsReport, error) {
	return &domain.MaterialsReport{}, nil
}

func (c *countingAnalytics) Tests(context.Context) (*domain.TestsReport, error) {
	return &domain.TestsReport{}, nil
}

func (c *countingAnalytics) Class(context.Context, string) (*domain.ClassReport, error) {
	return &domain.ClassReport{}, nil
}

func TestAnalyticsService_CachesReports(t *testing.T) {
	repo := &countingAnalytics{}
	svc := NewAnalyticsService(repo, time.Minute, zap.NewNop().Sugar())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		o, err := svc.Overview(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), o.TotalUsers)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.overviews))
}

func TestAnalyticsService_ZeroTTLAlwaysLoads(t *testing.T) {
	repo := &countingAnalytics{}
	svc := NewAnalyticsService(repo, 0, zap.NewNop().Sugar())

	_, _ = svc.Overview(context.Background())
	_, _ = svc.Overview(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&repo.overviews))
}

func TestAnalyticsService_StoreErrorIsHidden(t *testing.T) {
	svc := NewAnalyticsService(&countingAnalytics{fail: true}, time.Minute, zap.NewNop().Sugar())

	_, err := svc.Overview(context.Background())
	assertCode(t, err, apperrors.ErrCodeInternal)
	assert.Equal(t, "internal server error", apperrors.GetAppError(err).Message)
}

func TestAnalyticsService_OverSQLite(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	student := env.user(t, "2", domain.RoleStudent, "9A")
	m := env.publishedMaterial(t, teacher)
	_, err := env.studentService().UpdateProgress(context.Background(), student, m.ID, 100, 10)
	require.NoError(t, err)

	svc := NewAnalyticsService(env.analytics, time.Minute, env.logger)
	o, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), o.TotalUsers)
	assert.Equal(t, int64(1), o.TotalMaterials)

	s, err := svc.Students(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, s.TopStudents)
	assert.Equal(t, student.UserID, s.TopStudents[0].ID)
}
