package services

import (
	"context"
	"errors"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/utils"
	"physlab/pkg/validation"

	"go.uber.org/zap"
)

type materialService struct {
	materials ports.MaterialRepository
	users     ports.UserRepository
	policy    *AccessPolicy
	notifier  ports.Notifier
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewMaterialService(
	materials ports.MaterialRepository,
	users ports.UserRepository,
	policy *AccessPolicy,
	notifier ports.Notifier,
	logger *zap.SugaredLogger,
) ports.MaterialService {
	return &materialService{
		materials: materials,
		users:     users,
		policy:    policy,
		notifier:  notifierOrNop(notifier),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *materialService) Create(ctx context.Context, id domain.Identity, in domain.MaterialInput) (*domain.Material, error) {
	if err := s.policy.Authorize(OpMaterialCreate, id); err != nil {
		return nil, err
	}
	if err := validateMaterialInput(in); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	author := id.UserID
	if in.AuthorID != nil && *in.AuthorID != 0 && *in.AuthorID != id.UserID && id.Role == domain.RoleAdmin {
		other, err := s.users.GetByID(ctx, *in.AuthorID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, apperrors.NewValidationError("teacherId", "teacherId does not match a user")
			}
			return nil, apperrors.NewStoreError(err)
		}
		if !other.Role.IsPrivileged() {
			return nil, apperrors.NewValidationError("teacherId", "teacherId must belong to a teacher")
		}
		author = other.ID
	}

	m := &domain.Material{
		Title:       in.Title,
		Description: in.Description,
		Content:     in.Content,
		Type:        in.Type,
		Subject:     in.Subject,
		Difficulty:  in.Difficulty,
		Duration:    in.Duration,
		AuthorID:    author,
		Status:      domain.StatusDraft,
		FileURL:     in.FileURL,
		Tags:        utils.NormalizeTags(in.Tags),
		Version:     1,
	}
	if m.Difficulty == "" {
		m.Difficulty = domain.DefaultDifficulty
	}
	if m.Duration == 0 {
		m.Duration = domain.DefaultDuration
	}
	if in.IsPublished {
		m.Publish(s.now())
	}

	if err := s.materials.Create(ctx, m); err != nil {
		return nil, classify(err, "material")
	}
	stored, err := s.materials.GetByID(ctx, m.ID)
	if err != nil {
		return nil, classify(err, "material")
	}

	s.logger.Infow("material created",
		"material_id", stored.ID,
		"author_id", stored.AuthorID,
		"status", stored.Status,
	)
	s.notifier.MaterialCreated(ctx, stored)
	return stored, nil
}

// Get hides drafts from everyone but their author and admins. Student reads count as views.
func (s *materialService) Get(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error) {
	m, err := s.materials.GetByID(ctx, materialID)
	if err != nil {
		return nil, classify(err, "material")
	}
	if !m.VisibleTo(id) {
		return nil, apperrors.NewNotFoundError("material")
	}
	if id.Role == domain.RoleStudent {
		if err := s.materials.IncrementViews(context.WithoutCancel(ctx), materialID); err != nil {
			s.logger.Warnw("failed to count material view", "material_id", materialID, "error", err)
		} else {
			m.ViewsCount++
		}
	}
	return m, nil
}

func (s *materialService) List(ctx context.Context, f domain.MaterialFilter) ([]*domain.Material, int64, error) {
	list, total, err := s.materials.ListPublished(ctx, f)
	if err != nil {
		return nil, 0, classify(err, "material")
	}
	return list, total, nil
}

func (s *materialService) ListByAuthor(ctx context.Context, id domain.Identity, f domain.AuthorFilter) ([]*domain.Material, error) {
	if err := s.policy.Authorize(OpMaterialListAuthor, id); err != nil {
		return nil, err
	}
	if id.Role != domain.RoleAdmin && f.AuthorID != id.UserID {
		return nil, apperrors.NewUnauthorizedError("teachers may only list their own materials")
	}
	if f.Status != "" && f.Status != domain.StatusDraft && f.Status != domain.StatusPublished {
		return nil, apperrors.NewValidationError("status", "status must be one of: draft, published")
	}
	list, err := s.materials.ListByAuthor(ctx, f)
	if err != nil {
		return nil, classify(err, "material")
	}
	return list, nil
}

func (s *materialService) Update(ctx context.Context, id domain.Identity, materialID domain.MaterialID, p domain.MaterialPatch) (*domain.Material, error) {
	if err := validateMaterialPatch(p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, OpMaterialUpdate, id, materialID, p)
}

// Publish is a no-op success on an already published material.
func (s *materialService) Publish(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error) {
	published := true
	return s.mutate(ctx, OpMaterialPublish, id, materialID, domain.MaterialPatch{IsPublished: &published})
}

func (s *materialService) Unpublish(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error) {
	published := false
	return s.mutate(ctx, OpMaterialPublish, id, materialID, domain.MaterialPatch{IsPublished: &published})
}

// mutate applies p with a compare-and-set on the version read here. The
// notifier runs only after the write committed and only if something changed.
func (s *materialService) mutate(ctx context.Context, op Operation, id domain.Identity, materialID domain.MaterialID, p domain.MaterialPatch) (*domain.Material, error) {
	if err := s.policy.Authorize(op, id); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	current, err := s.materials.GetByID(ctx, materialID)
	if err != nil {
		return nil, classify(err, "material")
	}
	if !current.EditableBy(id) {
		return nil, apperrors.NewUnauthorizedError("only the author or an admin may change this material")
	}
	if p.Version != nil && *p.Version != current.Version {
		return nil, apperrors.NewConflictError("material was modified by someone else").
			WithContext("current_version", current.Version)
	}

	before := *current
	before.Tags = append([]string(nil), current.Tags...)
	if p.Tags != nil {
		p.Tags = utils.NormalizeTags(p.Tags)
	}

	now := s.now()
	if !current.Apply(p, now) {
		return current, nil
	}
	current.UpdatedAt = now

	if err := s.materials.UpdateVersioned(ctx, current, before.Version); err != nil {
		return nil, classify(err, "material")
	}

	s.logger.Infow("material updated",
		"material_id", current.ID,
		"version", current.Version,
		"status", current.Status,
	)
	s.notifier.MaterialUpdated(ctx, &before, current)
	return current, nil
}

func (s *materialService) Delete(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error) {
	if err := s.policy.Authorize(OpMaterialDelete, id); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	m, err := s.materials.GetByID(ctx, materialID)
	if err != nil {
		return nil, classify(err, "material")
	}
	if !m.EditableBy(id) {
		return nil, apperrors.NewUnauthorizedError("only the author or an admin may delete this material")
	}
	if err := s.materials.DeleteCascade(ctx, materialID); err != nil {
		return nil, classify(err, "material")
	}

	s.logger.Infow("material deleted", "material_id", m.ID, "by", id.UserID)
	s.notifier.MaterialDeleted(ctx, m)
	return m, nil
}

func (s *materialService) Stats(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.MaterialStats, error) {
	if err := s.policy.Authorize(OpMaterialStats, id); err != nil {
		return nil, err
	}
	stats, err := s.materials.Stats(ctx, materialID)
	if err != nil {
		return nil, classify(err, "material")
	}
	return stats, nil
}

func validateMaterialInput(in domain.MaterialInput) error {
	if err := validation.ValidateNonEmptyString(in.Title, "title"); err != nil {
		return err
	}
	if err := validation.ValidateStringLength(in.Title, 1, 255, "title"); err != nil {
		return err
	}
	if err := validation.ValidateNonEmptyString(in.Type, "type"); err != nil {
		return err
	}
	if err := validation.ValidateNonEmptyString(in.Subject, "category"); err != nil {
		return err
	}
	if err := validation.ValidateOneOf(in.Difficulty, domain.Difficulties, "difficulty"); err != nil {
		return err
	}
	if in.Duration < 0 {
		return apperrors.NewValidationError("duration", "duration must not be negative")
	}
	return validation.ValidateURL(in.FileURL, "fileUrl")
}

func validateMaterialPatch(p domain.MaterialPatch) error {
	if p.Title != nil {
		if err := validation.ValidateNonEmptyString(*p.Title, "title"); err != nil {
			return err
		}
		if err := validation.ValidateStringLength(*p.Title, 1, 255, "title"); err != nil {
			return err
		}
	}
	if p.Type != nil {
		if err := validation.ValidateNonEmptyString(*p.Type, "type"); err != nil {
			return err
		}
	}
	if p.Subject != nil {
		if err := validation.ValidateNonEmptyString(*p.Subject, "category"); err != nil {
			return err
		}
	}
	if p.Difficulty != nil {
		if err := validation.ValidateOneOf(*p.Difficulty, domain.Difficulties, "difficulty"); err != nil {
			return err
		}
	}
	if p.Duration != nil && *p.Duration < 0 {
		return apperrors.NewValidationError("duration", "duration must not be negative")
	}
	if p.FileURL != nil {
		return validation.ValidateURL(*p.FileURL, "fileUrl")
	}
	return nil
}
