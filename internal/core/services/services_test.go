package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/infrastructure/repositories/sqlite"
	apperrors "physlab/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db           *gorm.DB
	store        *sqlite.Store
	users        *sqlite.UserRepository
	materials    *sqlite.MaterialRepository
	progress     *sqlite.ProgressRepository
	achievements *sqlite.AchievementRepository
	tests        *sqlite.TestRepository
	results      *sqlite.TestResultRepository
	messages     *sqlite.MessageRepository
	schedule     *sqlite.ScheduleRepository
	analytics    *sqlite.AnalyticsRepository
	policy       *AccessPolicy
	notifier     *recordingNotifier
	logger       *zap.SugaredLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(sqlite.Options{Path: sqlite.MemoryPath, BusyTimeout: time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })

	return &testEnv{
		db:           db,
		store:        sqlite.NewStore(db),
		users:        sqlite.NewUserRepository(db),
		materials:    sqlite.NewMaterialRepository(db),
		progress:     sqlite.NewProgressRepository(db),
		achievements: sqlite.NewAchievementRepository(db),
		tests:        sqlite.NewTestRepository(db),
		results:      sqlite.NewTestResultRepository(db),
		messages:     sqlite.NewMessageRepository(db),
		schedule:     sqlite.NewScheduleRepository(db),
		analytics:    sqlite.NewAnalyticsRepository(db),
		policy:       DefaultAccessPolicy(),
		notifier:     &recordingNotifier{},
		logger:       zap.NewNop().Sugar(),
	}
}

func (e *testEnv) user(t *testing.T, tgID string, role domain.Role, class string) domain.Identity {
	t.Helper()
	u := &domain.User{
		TelegramID: tgID,
		Role:       role,
		Name:       "Name" + tgID,
		Surname:    "Surname" + tgID,
		Class:      class,
		Level:      domain.LevelBeginner,
		Subjects:   []string{},
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u.Identity()
}

func (e *testEnv) materialService() *materialService {
	return NewMaterialService(e.materials, e.users, e.policy, e.notifier, e.logger).(*materialService)
}

func (e *testEnv) studentService() *studentService {
	return NewStudentService(StudentRepos{
		Users:        e.users,
		Materials:    e.materials,
		Progress:     e.progress,
		Achievements: e.achievements,
		Tests:        e.tests,
		Results:      e.results,
		Tx:           e.store,
	}, e.notifier, e.logger).(*studentService)
}

func (e *testEnv) publishedMaterial(t *testing.T, author domain.Identity) *domain.Material {
	t.Helper()
	m, err := e.materialService().Create(context.Background(), author, domain.MaterialInput{
		Title:       "Kinematics",
		Type:        "text",
		Subject:     "mechanics",
		IsPublished: true,
	})
	require.NoError(t, err)
	return m
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr, "expected %s, got %v", code, err)
	assert.Equal(t, code, appErr.Code)
}

type notifyCall struct {
	Kind   string
	Before *domain.Material
	After  *domain.Material
	Msg    *domain.Message
	Bcast  domain.BroadcastResult
	Prog   *domain.Progress
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) record(c notifyCall) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, c)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	for i, c := range n.calls {
		out[i] = c.Kind
	}
	return out
}

func (n *recordingNotifier) last() notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = nil
}

func (n *recordingNotifier) MaterialCreated(_ context.Context, m *domain.Material) {
	n.record(notifyCall{Kind: "created", After: m})
}

func (n *recordingNotifier) MaterialUpdated(_ context.Context, before, after *domain.Material) {
	n.record(notifyCall{Kind: "updated", Before: before, After: after})
}

func (n *recordingNotifier) MaterialDeleted(_ context.Context, m *domain.Material) {
	n.record(notifyCall{Kind: "deleted", Before: m})
}

func (n *recordingNotifier) MessageSent(_ context.Context, msg *domain.Message, _ domain.Identity) {
	n.record(notifyCall{Kind: "message", Msg: msg})
}

func (n *recordingNotifier) BroadcastSent(_ context.Context, _ domain.Identity, b domain.BroadcastResult) {
	n.record(notifyCall{Kind: "broadcast", Bcast: b})
}

func (n *recordingNotifier) ProgressUpdated(_ context.Context, _ domain.Identity, p *domain.Progress) {
	n.record(notifyCall{Kind: "progress", Prog: p})
}

func (n *recordingNotifier) SystemNotification(context.Context, domain.Role, interface{}) {
	n.record(notifyCall{Kind: "system"})
}
