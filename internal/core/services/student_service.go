package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/validation"

	"go.uber.org/zap"
)

const (
	recentActivityLimit = 10
	recentResultsLimit  = 10
	leaderboardLimit    = 50
)

// StudentRepos groups the repositories the student service reads and writes.
type StudentRepos struct {
	Users        ports.UserRepository
	Materials    ports.MaterialRepository
	Progress     ports.ProgressRepository
	Achievements ports.AchievementRepository
	Tests        ports.TestRepository
	Results      ports.TestResultRepository
	Tx           ports.Transactor
}

type studentService struct {
	repos    StudentRepos
	notifier ports.Notifier
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewStudentService(repos StudentRepos, notifier ports.Notifier, logger *zap.SugaredLogger) ports.StudentService {
	return &studentService{
		repos:    repos,
		notifier: notifierOrNop(notifier),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *studentService) Overview(ctx context.Context, id domain.Identity) (*domain.StudentDashboard, error) {
	user, err := s.repos.Users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, classify(err, "user")
	}
	subjects, err := s.repos.Progress.SubjectSummary(ctx, id.UserID)
	if err != nil {
		return nil, classify(err, "progress")
	}
	activity, err := s.repos.Progress.Activity(ctx, id.UserID, recentActivityLimit)
	if err != nil {
		return nil, classify(err, "progress")
	}
	achievements, err := s.repos.Achievements.ListByUser(ctx, id.UserID)
	if err != nil {
		return nil, classify(err, "achievement")
	}
	results, err := s.repos.Results.ListByUser(ctx, id.UserID, recentResultsLimit)
	if err != nil {
		return nil, classify(err, "test result")
	}
	return &domain.StudentDashboard{
		User:           *user,
		Subjects:       subjects,
		RecentActivity: activity,
		Achievements:   achievements,
		TestResults:    results,
	}, nil
}

func (s *studentService) Materials(ctx context.Context, id domain.Identity, f domain.MaterialFilter) ([]domain.MaterialWithProgress, int64, error) {
	list, total, err := s.repos.Progress.MaterialsForStudent(ctx, id.UserID, f)
	if err != nil {
		return nil, 0, classify(err, "material")
	}
	return list, total, nil
}

// UpdateProgress upserts progress. Time spent accumulates. Reaching 100 for the
// first time completes the material and awards XP plus an achievement exactly once.
func (s *studentService) UpdateProgress(ctx context.Context, id domain.Identity, materialID domain.MaterialID, percentage, timeSpent int) (*domain.ProgressChange, error) {
	if err := validation.ValidatePercentage(percentage, "progress_percentage"); err != nil {
		return nil, err
	}
	if timeSpent < 0 {
		return nil, apperrors.NewValidationError("time_spent", "time_spent must not be negative")
	}

	ctx = context.WithoutCancel(ctx)
	var change domain.ProgressChange
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		material, err := s.repos.Materials.GetByID(ctx, materialID)
		if err != nil {
			return err
		}
		if !material.IsPublished() {
			return domain.ErrNotFound
		}

		now := s.now()
		p, err := s.repos.Progress.Get(ctx, id.UserID, materialID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p = &domain.Progress{UserID: id.UserID, MaterialID: materialID}
		case err != nil:
			return err
		}

		p.ProgressPercentage = percentage
		p.TimeSpent += timeSpent
		p.LastAccessed = now
		if percentage >= 100 && !p.Completed() {
			completed := now
			p.CompletedAt = &completed
			change.JustCompleted = true
		}
		if err := s.repos.Progress.Save(ctx, p); err != nil {
			return err
		}

		if change.JustCompleted {
			if err := s.repos.Users.AddXP(ctx, id.UserID, domain.MaterialCompletionXP); err != nil {
				return err
			}
			if err := s.repos.Achievements.Create(ctx, &domain.Achievement{
				UserID:      id.UserID,
				Type:        domain.AchievementMaterialCompleted,
				Title:       "Material completed",
				Description: fmt.Sprintf("Completed %q", material.Title),
				XPReward:    domain.MaterialCompletionXP,
				EarnedAt:    now,
			}); err != nil {
				return err
			}
			change.XPAwarded = domain.MaterialCompletionXP
		}

		change.Progress = *p
		return s.repos.Users.Touch(ctx, id.UserID, now)
	})
	if err != nil {
		return nil, classify(err, "material")
	}

	if change.JustCompleted {
		s.logger.Infow("material completed",
			"user_id", id.UserID,
			"material_id", materialID,
			"xp", change.XPAwarded,
		)
	}
	s.notifier.ProgressUpdated(ctx, id, &change.Progress)
	return &change, nil
}

func (s *studentService) Tests(ctx context.Context, subject string) ([]domain.Test, error) {
	tests, err := s.repos.Tests.List(ctx, subject)
	if err != nil {
		return nil, classify(err, "test")
	}
	out := make([]domain.Test, len(tests))
	for i, t := range tests {
		out[i] = t.WithoutAnswers()
	}
	return out, nil
}

// SubmitTest always records the attempt. XP is only the improvement over the best earlier attempt.
func (s *studentService) SubmitTest(ctx context.Context, id domain.Identity, testID domain.TestID, answers []domain.Answer, timeTaken int) (*domain.TestSubmission, error) {
	if timeTaken < 0 {
		return nil, apperrors.NewValidationError("time_taken", "time_taken must not be negative")
	}

	ctx = context.WithoutCancel(ctx)
	var out domain.TestSubmission
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		test, err := s.repos.Tests.GetByID(ctx, testID)
		if err != nil {
			return err
		}

		score := test.Score(answers)
		total := len(test.Questions)
		percentage := domain.Percentage(score, total)

		best, hasPrevious, err := s.repos.Results.BestPercentage(ctx, id.UserID, testID)
		if err != nil {
			return err
		}
		xp := domain.ResubmissionXP(percentage, best, hasPrevious)

		now := s.now()
		result := &domain.TestResult{
			UserID:         id.UserID,
			TestID:         testID,
			Score:          score,
			TotalQuestions: total,
			Percentage:     percentage,
			TimeTaken:      timeTaken,
			Answers:        answers,
			XPAwarded:      xp,
			CompletedAt:    now,
		}
		if result.Answers == nil {
			result.Answers = []domain.Answer{}
		}
		if err := s.repos.Results.Create(ctx, result); err != nil {
			return err
		}
		if err := s.repos.Users.AddXP(ctx, id.UserID, xp); err != nil {
			return err
		}

		if percentage > best {
			best = percentage
		}
		out = domain.TestSubmission{
			ResultID:       result.ID,
			Score:          score,
			TotalQuestions: total,
			Percentage:     percentage,
			XPEarned:       xp,
			BestPercentage: best,
		}
		return s.repos.Users.Touch(ctx, id.UserID, now)
	})
	if err != nil {
		return nil, classify(err, "test")
	}

	s.logger.Infow("test submitted",
		"user_id", id.UserID,
		"test_id", testID,
		"percentage", out.Percentage,
		"xp", out.XPEarned,
	)
	return &out, nil
}

func (s *studentService) Leaderboard(ctx context.Context) ([]domain.StudentRanking, error) {
	list, err := s.repos.Users.Leaderboard(ctx, leaderboardLimit)
	if err != nil {
		return nil, classify(err, "user")
	}
	return list, nil
}
