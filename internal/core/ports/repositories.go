package ports

import (
	"context"
	"time"

	"physlab/internal/core/domain"
)

// Transactor runs fn in one store transaction. Repositories called with the
// context passed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Touch(ctx context.Context, id domain.UserID, at time.Time) error
	AddXP(ctx context.Context, id domain.UserID, delta int) error
	ListStudents(ctx context.Context, q domain.StudentQuery) ([]domain.StudentSummary, int64, error)
	// StudentsInGroup returns all students for domain.BroadcastAll, otherwise the students of one class.
	StudentsInGroup(ctx context.Context, group string) ([]*domain.User, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.StudentRanking, error)
}

type MaterialRepository interface {
	Create(ctx context.Context, m *domain.Material) error
	GetByID(ctx context.Context, id domain.MaterialID) (*domain.Material, error)
	ListPublished(ctx context.Context, f domain.MaterialFilter) ([]*domain.Material, int64, error)
	ListByAuthor(ctx context.Context, f domain.AuthorFilter) ([]*domain.Material, error)
	// UpdateVersioned writes m only if the stored version equals expected and
	// sets m.Version to expected+1. Zero matching rows yield domain.ErrVersionConflict.
	UpdateVersioned(ctx context.Context, m *domain.Material, expected int) error
	IncrementViews(ctx context.Context, id domain.MaterialID) error
	// DeleteCascade removes the material and its progress rows in one transaction.
	DeleteCascade(ctx context.Context, id domain.MaterialID) error
	Stats(ctx context.Context, id domain.MaterialID) (*domain.MaterialStats, error)
}

type ProgressRepository interface {
	Get(ctx context.Context, userID domain.UserID, materialID domain.MaterialID) (*domain.Progress, error)
	Save(ctx context.Context, p *domain.Progress) error
	Activity(ctx context.Context, userID domain.UserID, limit int) ([]domain.Activity, error)
	SubjectSummary(ctx context.Context, userID domain.UserID) ([]domain.SubjectProgress, error)
	MaterialsForStudent(ctx context.Context, userID domain.UserID, f domain.MaterialFilter) ([]domain.MaterialWithProgress, int64, error)
}

type AchievementRepository interface {
	Create(ctx context.Context, a *domain.Achievement) error
	Exists(ctx context.Context, userID domain.UserID, kind string) (bool, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Achievement, error)
}

type TestRepository interface {
	Create(ctx context.Context, t *domain.Test) error
	GetByID(ctx context.Context, id domain.TestID) (*domain.Test, error)
	List(ctx context.Context, subject string) ([]*domain.Test, error)
}

type TestResultRepository interface {
	Create(ctx context.Context, r *domain.TestResult) error
	// BestPercentage reports the best earlier percentage and whether any attempt exists.
	BestPercentage(ctx context.Context, userID domain.UserID, testID domain.TestID) (int, bool, error)
	ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.TestResult, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	CreateBatch(ctx context.Context, ms []*domain.Message) error
	GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	// MarkRead sets read_at only when it is unset.
	MarkRead(ctx context.Context, id domain.MessageID, at time.Time) error
	ListSent(ctx context.Context, senderID domain.UserID, offset, limit int) ([]*domain.Message, int64, error)
	ListReceived(ctx context.Context, recipientID domain.UserID, offset, limit int) ([]*domain.Message, int64, error)
	DeliveryStats(ctx context.Context, m *domain.Message) (*domain.DeliveryStats, error)
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) error
	GetByID(ctx context.Context, id domain.ScheduleID) (*domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
	Delete(ctx context.Context, id domain.ScheduleID) error
	List(ctx context.Context, f domain.ScheduleFilter) ([]*domain.Schedule, error)
}

type AnalyticsRepository interface {
	Overview(ctx context.Context, now time.Time) (*domain.Overview, error)
	Students(ctx context.Context) (*domain.StudentsReport, error)
	Materials(ctx context.Context) (*domain.MaterialsReport, error)
	Tests(ctx context.Context) (*domain.TestsReport, error)
	Class(ctx context.Context, class string) (*domain.ClassReport, error)
}
