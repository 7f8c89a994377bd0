package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"physlab/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(Options{Path: MemoryPath, BusyTimeout: time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func createUser(t *testing.T, db *gorm.DB, tgID string, role domain.Role, class string) *domain.User {
	t.Helper()
	u := &domain.User{TelegramID: tgID, Role: role, Name: "Name" + tgID, Surname: "Surname" + tgID, Class: class}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func createMaterial(t *testing.T, db *gorm.DB, author domain.UserID, status domain.MaterialStatus) *domain.Material {
	t.Helper()
	m := &domain.Material{
		Title:      "Newton's laws",
		Type:       "text",
		Subject:    "mechanics",
		Difficulty: domain.DefaultDifficulty,
		Duration:   domain.DefaultDuration,
		AuthorID:   author,
		Status:     status,
		Tags:       []string{"force", "motion"},
	}
	require.NoError(t, NewMaterialRepository(db).Create(context.Background(), m))
	return m
}

func TestUserRepository_DuplicateTelegramID(t *testing.T) {
	db := setupTestDB(t)
	createUser(t, db, "100", domain.RoleStudent, "9A")

	err := NewUserRepository(db).Create(context.Background(), &domain.User{TelegramID: "100"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestUserRepository_GetAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := createUser(t, db, "200", domain.RoleStudent, "")

	got, err := repo.GetByTelegramID(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.LevelBeginner, got.Level)
	assert.Equal(t, []string{}, got.Subjects)

	got.Class = "10B"
	got.Subjects = []string{"optics"}
	require.NoError(t, repo.Update(ctx, got))
	require.NoError(t, repo.AddXP(ctx, got.ID, 50))

	reloaded, err := repo.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "10B", reloaded.Class)
	assert.Equal(t, []string{"optics"}, reloaded.Subjects)
	assert.Equal(t, 50, reloaded.XP)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMaterialRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	m := createMaterial(t, db, teacher.ID, domain.StatusDraft)

	got, err := NewMaterialRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Title, got.Title)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, []string{"force", "motion"}, got.Tags)
	assert.Equal(t, teacher.FullName(), got.AuthorName)
	assert.Equal(t, domain.StatusDraft, got.Status)
}

func TestMaterialRepository_UpdateVersioned(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMaterialRepository(db)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	m := createMaterial(t, db, teacher.ID, domain.StatusDraft)

	first, _ := repo.GetByID(ctx, m.ID)
	second, _ := repo.GetByID(ctx, m.ID)

	first.Title = "Updated"
	require.NoError(t, repo.UpdateVersioned(ctx, first, first.Version))
	assert.Equal(t, 2, first.Version)

	second.Title = "Lost update"
	err := repo.UpdateVersioned(ctx, second, second.Version)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated", stored.Title)
	assert.Equal(t, 2, stored.Version)

	missing := &domain.Material{ID: 404}
	assert.ErrorIs(t, repo.UpdateVersioned(ctx, missing, 1), domain.ErrNotFound)
}

func TestMaterialRepository_DeleteCascadeRemovesProgress(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	student := createUser(t, db, "2", domain.RoleStudent, "9A")
	m := createMaterial(t, db, teacher.ID, domain.StatusPublished)

	progress := NewProgressRepository(db)
	require.NoError(t, progress.Save(ctx, &domain.Progress{
		UserID: student.ID, MaterialID: m.ID, ProgressPercentage: 40, LastAccessed: time.Now().UTC(),
	}))

	repo := NewMaterialRepository(db)
	require.NoError(t, repo.DeleteCascade(ctx, m.ID))

	_, err := repo.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = progress.Get(ctx, student.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteCascade(ctx, m.ID), domain.ErrNotFound)
}

func TestMaterialRepository_ListPublishedAndStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	student := createUser(t, db, "2", domain.RoleStudent, "9A")
	published := createMaterial(t, db, teacher.ID, domain.StatusPublished)
	createMaterial(t, db, teacher.ID, domain.StatusDraft)

	repo := NewMaterialRepository(db)
	list, total, err := repo.ListPublished(ctx, domain.MaterialFilter{Subject: "mechanics", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, published.ID, list[0].ID)

	mine, err := repo.ListByAuthor(ctx, domain.AuthorFilter{AuthorID: teacher.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	require.NoError(t, repo.IncrementViews(ctx, published.ID))
	now := time.Now().UTC()
	require.NoError(t, NewProgressRepository(db).Save(ctx, &domain.Progress{
		UserID: student.ID, MaterialID: published.ID, ProgressPercentage: 100, TimeSpent: 30,
		LastAccessed: now, CompletedAt: &now,
	}))

	stats, err := repo.Stats(ctx, published.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalViews)
	assert.Equal(t, int64(1), stats.CompletedCount)
	assert.InDelta(t, 100, stats.AvgProgress, 0.01)

	_, err = repo.Stats(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProgressRepository_UniquePair(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	student := createUser(t, db, "2", domain.RoleStudent, "9A")
	m := createMaterial(t, db, teacher.ID, domain.StatusPublished)

	repo := NewProgressRepository(db)
	require.NoError(t, repo.Save(ctx, &domain.Progress{UserID: student.ID, MaterialID: m.ID, LastAccessed: time.Now().UTC()}))
	err := repo.Save(ctx, &domain.Progress{UserID: student.ID, MaterialID: m.ID, LastAccessed: time.Now().UTC()})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	withProgress, total, err := repo.MaterialsForStudent(ctx, student.ID, domain.MaterialFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, withProgress, 1)

	activity, err := repo.Activity(ctx, student.ID, 10)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, "Newton's laws", activity[0].Title)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	users := NewUserRepository(db)
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, users.Create(ctx, &domain.User{TelegramID: "tx"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = users.GetByTelegramID(context.Background(), "tx")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_WithinTxRetriesBusy(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	users := NewUserRepository(db)

	attempts := 0
	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		attempts++
		require.NoError(t, users.Create(ctx, &domain.User{TelegramID: "busy"}))
		if attempts == 1 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	// the first attempt was rolled back, so exactly one row exists
	_, err = users.GetByTelegramID(context.Background(), "busy")
	assert.NoError(t, err)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsBusy(errors.New("UNIQUE constraint failed")))
	assert.False(t, IsBusy(nil))
}

func TestTestResultRepository_BestPercentage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	student := createUser(t, db, "2", domain.RoleStudent, "9A")

	test := &domain.Test{Title: "Kinematics", Subject: "mechanics", AuthorID: teacher.ID, TimeLimit: 600,
		Difficulty: "medium", Questions: []domain.Question{{Question: "v = ?", CorrectAnswer: "s/t"}}}
	require.NoError(t, NewTestRepository(db).Create(ctx, test))

	results := NewTestResultRepository(db)
	_, ok, err := results.BestPercentage(ctx, student.ID, test.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, pct := range []int{40, 80, 60} {
		require.NoError(t, results.Create(ctx, &domain.TestResult{
			UserID: student.ID, TestID: test.ID, Percentage: pct, TotalQuestions: 1,
			Answers: []domain.Answer{"s/t"}, CompletedAt: time.Now().UTC(),
		}))
	}
	best, ok, err := results.BestPercentage(ctx, student.ID, test.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 80, best)

	list, err := results.ListByUser(ctx, student.ID, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "Kinematics", list[0].TestTitle)

	stored, err := NewTestRepository(db).GetByID(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Answer("s/t"), stored.Questions[0].CorrectAnswer)
}

func TestMessageRepository_BroadcastDeliveryStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	s1 := createUser(t, db, "2", domain.RoleStudent, "9A")
	s2 := createUser(t, db, "3", domain.RoleStudent, "9A")
	createUser(t, db, "4", domain.RoleStudent, "9B")

	recipients, err := NewUserRepository(db).StudentsInGroup(ctx, "9A")
	require.NoError(t, err)
	assert.Len(t, recipients, 2)

	sentAt := time.Now().UTC()
	var batch []*domain.Message
	for _, id := range []domain.UserID{s1.ID, s2.ID} {
		rid := id
		batch = append(batch, &domain.Message{
			SenderID: teacher.ID, RecipientID: &rid, Content: "Lab moved to room 12",
			Type: domain.MessageTypeText, Status: domain.MessageStatusSent,
			IsBroadcast: true, TargetGroup: "9A", SentAt: sentAt,
		})
	}
	repo := NewMessageRepository(db)
	require.NoError(t, repo.CreateBatch(ctx, batch))

	require.NoError(t, repo.MarkRead(ctx, batch[0].ID, time.Now().UTC()))
	first, err := repo.GetByID(ctx, batch[0].ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)
	assert.Equal(t, domain.MessageStatusRead, first.Status)
	assert.Equal(t, teacher.Name, first.SenderName)

	stats, err := repo.DeliveryStats(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStats{TotalSent: 2, TotalRead: 1, TotalUnread: 1}, *stats)

	received, total, err := repo.ListReceived(ctx, s2.ID, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, received, 1)
}

func TestScheduleRepository_ListRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	repo := NewScheduleRepository(db)

	day := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{10 * time.Hour, 34 * time.Hour, 9 * time.Hour} {
		s := &domain.Schedule{
			Title: "Lesson", StartTime: day.Add(offset), EndTime: day.Add(offset + 45*time.Minute),
			Type: domain.ScheduleTypeLesson, TargetUsers: "all", AuthorID: teacher.ID,
		}
		require.NoError(t, repo.Create(ctx, s), "entry %d", i)
	}

	list, err := repo.List(ctx, domain.ScheduleFilter{From: day, To: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].StartTime.Before(list[1].StartTime))

	assert.ErrorIs(t, repo.Delete(ctx, 404), domain.ErrNotFound)
}

func TestAnalyticsRepository_Reports(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	teacher := createUser(t, db, "1", domain.RoleTeacher, "")
	student := createUser(t, db, "2", domain.RoleStudent, "9A")
	m := createMaterial(t, db, teacher.ID, domain.StatusPublished)

	now := time.Now().UTC()
	require.NoError(t, NewUserRepository(db).Touch(ctx, student.ID, now))
	require.NoError(t, NewProgressRepository(db).Save(ctx, &domain.Progress{
		UserID: student.ID, MaterialID: m.ID, ProgressPercentage: 100, LastAccessed: now, CompletedAt: &now,
	}))

	repo := NewAnalyticsRepository(db)
	overview, err := repo.Overview(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), overview.TotalUsers)
	assert.Equal(t, int64(1), overview.TotalMaterials)
	assert.Equal(t, int64(1), overview.ActiveUsers)
	require.Len(t, overview.DailyActivity, 1)
	assert.Equal(t, int64(1), overview.DailyActivity[0].Count)
	require.Len(t, overview.PopularSubjects, 1)
	assert.Equal(t, "mechanics", overview.PopularSubjects[0].Subject)

	students, err := repo.Students(ctx)
	require.NoError(t, err)
	require.Len(t, students.TopStudents, 1)
	assert.Equal(t, int64(1), students.TopStudents[0].CompletedMaterials)

	class, err := repo.Class(ctx, "9A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), class.ClassStats.TotalStudents)

	tests, err := repo.Tests(ctx)
	require.NoError(t, err)
	assert.Empty(t, tests.TestResults)
}

func TestSnapshot(t *testing.T) {
	db := setupTestDB(t)
	createUser(t, db, "snap", domain.RoleStudent, "9A")

	dst := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, Snapshot(context.Background(), db, dst))

	copyDB, err := Open(Options{Path: dst, BusyTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer Close(copyDB)

	u, err := NewUserRepository(copyDB).GetByTelegramID(context.Background(), "snap")
	require.NoError(t, err)
	assert.Equal(t, "9A", u.Class)

	assert.Error(t, Snapshot(context.Background(), db, dst), "existing target is rejected")
}
