package ports

import (
	"context"

	"physlab/internal/core/domain"
)

// Broadcaster fans an event out to a realtime group.
type Broadcaster interface {
	Emit(ctx context.Context, group string, ev domain.Event) int
	EmitExcept(ctx context.Context, group string, ev domain.Event, exceptConnID string) int
}

// Notifier is called by domain operations after a mutation has committed.
type Notifier interface {
	MaterialCreated(ctx context.Context, m *domain.Material)
	MaterialUpdated(ctx context.Context, before, after *domain.Material)
	MaterialDeleted(ctx context.Context, m *domain.Material)
	MessageSent(ctx context.Context, msg *domain.Message, sender domain.Identity)
	BroadcastSent(ctx context.Context, sender domain.Identity, b domain.BroadcastResult)
	ProgressUpdated(ctx context.Context, student domain.Identity, p *domain.Progress)
	SystemNotification(ctx context.Context, role domain.Role, payload interface{})
}

type LoginResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type AuthService interface {
	LoginWithTelegram(ctx context.Context, initData string) (*LoginResult, error)
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
	IssueToken(user *domain.User) (string, error)
	Profile(ctx context.Context, id domain.Identity) (*domain.User, error)
	UpdateProfile(ctx context.Context, id domain.Identity, p domain.ProfileUpdate) (*domain.User, error)
}

type MaterialService interface {
	Create(ctx context.Context, id domain.Identity, in domain.MaterialInput) (*domain.Material, error)
	Get(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error)
	List(ctx context.Context, f domain.MaterialFilter) ([]*domain.Material, int64, error)
	ListByAuthor(ctx context.Context, id domain.Identity, f domain.AuthorFilter) ([]*domain.Material, error)
	Update(ctx context.Context, id domain.Identity, materialID domain.MaterialID, p domain.MaterialPatch) (*domain.Material, error)
	Publish(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error)
	Unpublish(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error)
	Delete(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error)
	Stats(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.MaterialStats, error)
}

type StudentService interface {
	Overview(ctx context.Context, id domain.Identity) (*domain.StudentDashboard, error)
	Materials(ctx context.Context, id domain.Identity, f domain.MaterialFilter) ([]domain.MaterialWithProgress, int64, error)
	UpdateProgress(ctx context.Context, id domain.Identity, materialID domain.MaterialID, percentage, timeSpent int) (*domain.ProgressChange, error)
	Tests(ctx context.Context, subject string) ([]domain.Test, error)
	SubmitTest(ctx context.Context, id domain.Identity, testID domain.TestID, answers []domain.Answer, timeTaken int) (*domain.TestSubmission, error)
	Leaderboard(ctx context.Context) ([]domain.StudentRanking, error)
}

type TeacherService interface {
	Students(ctx context.Context, q domain.StudentQuery) ([]domain.StudentSummary, int64, error)
	StudentDetail(ctx context.Context, studentID domain.UserID) (*domain.StudentDetail, error)
	CreateTest(ctx context.Context, id domain.Identity, t domain.Test) (*domain.Test, error)
	ClassAnalytics(ctx context.Context, class string) (*domain.ClassReport, error)
}

type MessageService interface {
	Send(ctx context.Context, id domain.Identity, recipientID domain.UserID, content, msgType string) (*domain.Message, error)
	Broadcast(ctx context.Context, id domain.Identity, targetGroup, content, msgType string) (*domain.BroadcastResult, error)
	History(ctx context.Context, id domain.Identity, page, limit int) ([]*domain.Message, int64, error)
	MarkRead(ctx context.Context, id domain.Identity, messageID domain.MessageID) (*domain.Message, error)
	DeliveryStats(ctx context.Context, id domain.Identity, messageID domain.MessageID) (*domain.DeliveryStats, error)
}

type ScheduleService interface {
	List(ctx context.Context, date, week string) ([]*domain.Schedule, error)
	Create(ctx context.Context, id domain.Identity, s domain.Schedule) (*domain.Schedule, error)
	Update(ctx context.Context, id domain.Identity, scheduleID domain.ScheduleID, s domain.SchedulePatch) (*domain.Schedule, error)
	Delete(ctx context.Context, id domain.Identity, scheduleID domain.ScheduleID) error
}

type AnalyticsService interface {
	Overview(ctx context.Context) (*domain.Overview, error)
	Students(ctx context.Context) (*domain.StudentsReport, error)
	Materials(ctx context.Context) (*domain.MaterialsReport, error)
	Tests(ctx context.Context) (*domain.TestsReport, error)
}
