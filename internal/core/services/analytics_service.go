package services

import (
	"context"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/pkg/cache"

	"go.uber.org/zap"
)

const (
	keyOverview  = "analytics:overview"
	keyStudents  = "analytics:students"
	keyMaterials = "analytics:materials"
	keyTests     = "analytics:tests"
)

// analyticsService serves aggregate reports from a short-lived cache.
// Concurrent misses for the same report share one query.
type analyticsService struct {
	analytics ports.AnalyticsRepository
	loader    *cache.Loader
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewAnalyticsService(analytics ports.AnalyticsRepository, ttl time.Duration, logger *zap.SugaredLogger) ports.AnalyticsService {
	return &analyticsService{
		analytics: analytics,
		loader:    cache.NewLoader(ttl),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *analyticsService) Overview(ctx context.Context) (*domain.Overview, error) {
	v, err := s.loader.GetOrLoad(ctx, keyOverview, func(ctx context.Context) (interface{}, error) {
		return s.analytics.Overview(ctx, s.now())
	})
	if err != nil {
		return nil, classify(err, "analytics")
	}
	return v.(*domain.Overview), nil
}

func (s *analyticsService) Students(ctx context.Context) (*domain.StudentsReport, error) {
	v, err := s.loader.GetOrLoad(ctx, keyStudents, func(ctx context.Context) (interface{}, error) {
		return s.analytics.Students(ctx)
	})
	if err != nil {
		return nil, classify(err, "analytics")
	}
	return v.(*domain.StudentsReport), nil
}

func (s *analyticsService) Materials(ctx context.Context) (*domain.MaterialsReport, error) {
	v, err := s.loader.GetOrLoad(ctx, keyMaterials, func(ctx context.Context) (interface{}, error) {
		return s.analytics.Materials(ctx)
	})
	if err != nil {
		return nil, classify(err, "analytics")
	}
	return v.(*domain.MaterialsReport), nil
}

func (s *analyticsService) Tests(ctx context.Context) (*domain.TestsReport, error) {
	v, err := s.loader.GetOrLoad(ctx, keyTests, func(ctx context.Context) (interface{}, error) {
		return s.analytics.Tests(ctx)
	})
	if err != nil {
		return nil, classify(err, "analytics")
	}
	return v.(*domain.TestsReport), nil
}
