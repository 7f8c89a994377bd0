package services

import (
	"context"
	"testing"

	"physlab/internal/core/domain"
	apperrors "physlab/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialService_CreateRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	student := env.user(t, "1", domain.RoleStudent, "")

	_, err := env.materialService().Create(context.Background(), student, domain.MaterialInput{Title: "x", Type: "text", Subject: "optics"})
	assertCode(t, err, apperrors.ErrCodeUnauthorized)
	assert.Empty(t, env.notifier.kinds())
}

func TestMaterialService_CreateDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	svc := env.materialService()
	ctx := context.Background()

	m, err := svc.Create(ctx, teacher, domain.MaterialInput{Title: "Optics", Type: "video", Subject: "optics"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, m.Status)
	assert.Equal(t, domain.DefaultDifficulty, m.Difficulty)
	assert.Equal(t, domain.DefaultDuration, m.Duration)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, teacher.UserID, m.AuthorID)
	assert.Nil(t, m.PublishedAt)
	assert.Equal(t, []string{}, m.Tags)
	assert.Equal(t, []string{"created"}, env.notifier.kinds())

	tagged, err := svc.Create(ctx, teacher, domain.MaterialInput{Title: "Lenses", Type: "text", Subject: "optics", Tags: []string{" lens", "", "lens", "focus "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"lens", "focus"}, tagged.Tags)

	_, err = svc.Create(ctx, teacher, domain.MaterialInput{Title: "Optics", Type: "video"})
	assertCode(t, err, apperrors.ErrCodeValidation)
	assert.Equal(t, "category", apperrors.GetAppError(err).Field)

	_, err = svc.Create(ctx, teacher, domain.MaterialInput{Title: "Optics", Type: "video", Subject: "optics", Difficulty: "insane"})
	assertCode(t, err, apperrors.ErrCodeValidation)
}

func TestMaterialService_AdminCreatesOnBehalf(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "1", domain.RoleAdmin, "")
	teacher := env.user(t, "2", domain.RoleTeacher, "")
	student := env.user(t, "3", domain.RoleStudent, "")
	svc := env.materialService()
	ctx := context.Background()

	m, err := svc.Create(ctx, admin, domain.MaterialInput{Title: "Waves", Type: "text", Subject: "waves", AuthorID: &teacher.UserID})
	require.NoError(t, err)
	assert.Equal(t, teacher.UserID, m.AuthorID)

	_, err = svc.Create(ctx, admin, domain.MaterialInput{Title: "Waves", Type: "text", Subject: "waves", AuthorID: &student.UserID})
	assertCode(t, err, apperrors.ErrCodeValidation)
	assert.Equal(t, "teacherId", apperrors.GetAppError(err).Field)

	other := env.user(t, "4", domain.RoleTeacher, "")
	m, err = svc.Create(ctx, other, domain.MaterialInput{Title: "Waves", Type: "text", Subject: "waves", AuthorID: &teacher.UserID})
	require.NoError(t, err)
	assert.Equal(t, other.UserID, m.AuthorID, "only admins may author on behalf")
}

func TestMaterialService_DraftHiddenFromStudents(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	student := env.user(t, "2", domain.RoleStudent, "")
	svc := env.materialService()
	ctx := context.Background()

	draft, err := svc.Create(ctx, teacher, domain.MaterialInput{Title: "Draft", Type: "text", Subject: "optics"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, student, draft.ID)
	assertCode(t, err, apperrors.ErrCodeNotFound)

	got, err := svc.Get(ctx, teacher, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ViewsCount)

	published := env.publishedMaterial(t, teacher)
	got, err = svc.Get(ctx, student, published.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewsCount)

	list, total, err := svc.List(ctx, domain.MaterialFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, published.ID, list[0].ID)
}

func TestMaterialService_PublishIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	svc := env.materialService()
	ctx := context.Background()

	m, err := svc.Create(ctx, teacher, domain.MaterialInput{Title: "Heat", Type: "text", Subject: "thermo"})
	require.NoError(t, err)
	env.notifier.reset()

	first, err := svc.Publish(ctx, teacher, m.ID)
	require.NoError(t, err)
	assert.True(t, first.IsPublished())
	assert.Equal(t, 2, first.Version)
	require.NotNil(t, first.PublishedAt)

	second, err := svc.Publish(ctx, teacher, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, first.PublishedAt.Unix(), second.PublishedAt.Unix())
	assert.Equal(t, []string{"updated"}, env.notifier.kinds(), "a no-op publish emits nothing")

	call := env.notifier.last()
	assert.False(t, call.Before.IsPublished())
	assert.True(t, call.After.IsPublished())

	unpublished, err := svc.Unpublish(ctx, teacher, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, unpublished.Status)
	assert.NotNil(t, unpublished.PublishedAt, "unpublish keeps published_at")
	assert.Equal(t, 3, unpublished.Version)
}

func TestMaterialService_UpdateVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	svc := env.materialService()
	ctx := context.Background()
	m := env.publishedMaterial(t, teacher)

	title := "Kinematics II"
	stale := m.Version
	updated, err := svc.Update(ctx, teacher, m.ID, domain.MaterialPatch{Title: &title, Version: &stale})
	require.NoError(t, err)
	assert.Equal(t, stale+1, updated.Version)

	again := "Kinematics III"
	_, err = svc.Update(ctx, teacher, m.ID, domain.MaterialPatch{Title: &again, Version: &stale})
	assertCode(t, err, apperrors.ErrCodeConflict)

	stored, err := env.materials.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kinematics II", stored.Title)
}

func TestMaterialService_OnlyAuthorOrAdminEdits(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, "1", domain.RoleTeacher, "")
	other := env.user(t, "2", domain.RoleTeacher, "")
	admin := env.user(t, "3", domain.RoleAdmin, "")
	svc := env.materialService()
	ctx := context.Background()
	m := env.publishedMaterial(t, author)

	title := "Hijacked"
	_, err := svc.Update(ctx, other, m.ID, domain.MaterialPatch{Title: &title})
	assertCode(t, err, apperrors.ErrCodeUnauthorized)

	_, err = svc.Delete(ctx, other, m.ID)
	assertCode(t, err, apperrors.ErrCodeUnauthorized)

	_, err = svc.Update(ctx, admin, m.ID, domain.MaterialPatch{Title: &title})
	require.NoError(t, err)

	_, err = svc.Update(ctx, author, 9999, domain.MaterialPatch{Title: &title})
	assertCode(t, err, apperrors.ErrCodeNotFound)
}

func TestMaterialService_DeleteCascadesProgress(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	student := env.user(t, "2", domain.RoleStudent, "")
	ctx := context.Background()
	m := env.publishedMaterial(t, teacher)

	_, err := env.studentService().UpdateProgress(ctx, student, m.ID, 40, 60)
	require.NoError(t, err)
	env.notifier.reset()

	deleted, err := env.materialService().Delete(ctx, teacher, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, deleted.ID)
	assert.Equal(t, []string{"deleted"}, env.notifier.kinds())

	_, err = env.materials.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.progress.Get(ctx, student.UserID, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMaterialService_MutationsSurviveCallerDisconnect(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	student := env.user(t, "2", domain.RoleStudent, "")
	svc := env.materialService()
	m := env.publishedMaterial(t, teacher)
	other := env.publishedMaterial(t, teacher)
	env.notifier.reset()

	gone, cancel := context.WithCancel(context.Background())
	cancel()

	title := "Renamed"
	updated, err := svc.Update(gone, teacher, other.ID, domain.MaterialPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, other.Version+1, updated.Version)

	_, err = svc.Delete(gone, teacher, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"updated", "deleted"}, env.notifier.kinds())

	_, err = svc.Get(context.Background(), student, m.ID)
	assertCode(t, err, apperrors.ErrCodeNotFound)
	read, err := svc.Get(context.Background(), student, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", read.Title)
}

func TestMaterialService_ListByAuthor(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.user(t, "1", domain.RoleTeacher, "")
	other := env.user(t, "2", domain.RoleTeacher, "")
	svc := env.materialService()
	ctx := context.Background()
	env.publishedMaterial(t, teacher)

	list, err := svc.ListByAuthor(ctx, teacher, domain.AuthorFilter{AuthorID: teacher.UserID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListByAuthor(ctx, other, domain.AuthorFilter{AuthorID: teacher.UserID})
	assertCode(t, err, apperrors.ErrCodeUnauthorized)

	_, err = svc.ListByAuthor(ctx, teacher, domain.AuthorFilter{AuthorID: teacher.UserID, Status: "archived"})
	assertCode(t, err, apperrors.ErrCodeValidation)
}
