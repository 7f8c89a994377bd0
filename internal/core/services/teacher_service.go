package services

import (
	"context"
	"fmt"
	"strings"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/validation"

	"go.uber.org/zap"
)

type teacherService struct {
	users        ports.UserRepository
	progress     ports.ProgressRepository
	achievements ports.AchievementRepository
	tests        ports.TestRepository
	results      ports.TestResultRepository
	analytics    ports.AnalyticsRepository
	policy       *AccessPolicy
	logger       *zap.SugaredLogger
}

func NewTeacherService(
	users ports.UserRepository,
	progress ports.ProgressRepository,
	achievements ports.AchievementRepository,
	tests ports.TestRepository,
	results ports.TestResultRepository,
	analytics ports.AnalyticsRepository,
	policy *AccessPolicy,
	logger *zap.SugaredLogger,
) ports.TeacherService {
	return &teacherService{
		users:        users,
		progress:     progress,
		achievements: achievements,
		tests:        tests,
		results:      results,
		analytics:    analytics,
		policy:       policy,
		logger:       logger,
	}
}

func (s *teacherService) Students(ctx context.Context, q domain.StudentQuery) ([]domain.StudentSummary, int64, error) {
	q.Search = strings.TrimSpace(q.Search)
	list, total, err := s.users.ListStudents(ctx, q)
	if err != nil {
		return nil, 0, classify(err, "student")
	}
	return list, total, nil
}

func (s *teacherService) StudentDetail(ctx context.Context, studentID domain.UserID) (*domain.StudentDetail, error) {
	user, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		return nil, classify(err, "student")
	}
	if user.Role != domain.RoleStudent {
		return nil, apperrors.NewNotFoundError("student")
	}

	progress, err := s.progress.Activity(ctx, studentID, 0)
	if err != nil {
		return nil, classify(err, "progress")
	}
	results, err := s.results.ListByUser(ctx, studentID, 0)
	if err != nil {
		return nil, classify(err, "test result")
	}
	achievements, err := s.achievements.ListByUser(ctx, studentID)
	if err != nil {
		return nil, classify(err, "achievement")
	}
	return &domain.StudentDetail{
		User:         *user,
		Progress:     progress,
		TestResults:  results,
		Achievements: achievements,
	}, nil
}

func (s *teacherService) CreateTest(ctx context.Context, id domain.Identity, t domain.Test) (*domain.Test, error) {
	if err := s.policy.Authorize(OpTestCreate, id); err != nil {
		return nil, err
	}
	if err := validateTest(t); err != nil {
		return nil, err
	}

	if t.TimeLimit <= 0 {
		t.TimeLimit = domain.DefaultTimeLimit
	}
	if t.Difficulty == "" {
		t.Difficulty = domain.DefaultDifficulty
	}
	t.AuthorID = id.UserID
	t.ID = 0

	if err := s.tests.Create(context.WithoutCancel(ctx), &t); err != nil {
		return nil, classify(err, "test")
	}
	s.logger.Infow("test created", "test_id", t.ID, "author_id", t.AuthorID, "questions", len(t.Questions))
	return &t, nil
}

func (s *teacherService) ClassAnalytics(ctx context.Context, class string) (*domain.ClassReport, error) {
	report, err := s.analytics.Class(ctx, strings.TrimSpace(class))
	if err != nil {
		return nil, classify(err, "class")
	}
	return report, nil
}

func validateTest(t domain.Test) error {
	if err := validation.ValidateNonEmptyString(t.Title, "title"); err != nil {
		return err
	}
	if err := validation.ValidateNonEmptyString(t.Subject, "subject"); err != nil {
		return err
	}
	if err := validation.ValidateOneOf(t.Difficulty, domain.Difficulties, "difficulty"); err != nil {
		return err
	}
	if len(t.Questions) == 0 {
		return apperrors.NewValidationError("questions", "at least one question is required")
	}
	for i, q := range t.Questions {
		if strings.TrimSpace(q.Question) == "" {
			field := fmt.Sprintf("questions[%d].question", i)
			return apperrors.NewValidationError(field, field+" is required")
		}
		if strings.TrimSpace(string(q.CorrectAnswer)) == "" {
			field := fmt.Sprintf("questions[%d].correct_answer", i)
			return apperrors.NewValidationError(field, field+" is required")
		}
	}
	return nil
}
