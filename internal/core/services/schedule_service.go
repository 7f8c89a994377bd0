package services

import (
	"context"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/validation"

	"go.uber.org/zap"
)

const week = 7 * 24 * time.Hour

type scheduleService struct {
	schedule ports.ScheduleRepository
	policy   *AccessPolicy
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewScheduleService(schedule ports.ScheduleRepository, policy *AccessPolicy, logger *zap.SugaredLogger) ports.ScheduleService {
	return &scheduleService{
		schedule: schedule,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns one day when date is set, seven days from week otherwise, or everything.
func (s *scheduleService) List(ctx context.Context, date, weekStart string) ([]*domain.Schedule, error) {
	var f domain.ScheduleFilter
	switch {
	case date != "":
		day, err := validation.ParseDate(date, "date")
		if err != nil {
			return nil, err
		}
		f.From, f.To = day, day.Add(24*time.Hour)
	case weekStart != "":
		start, err := validation.ParseDate(weekStart, "week")
		if err != nil {
			return nil, err
		}
		f.From, f.To = start, start.Add(week)
	}

	list, err := s.schedule.List(ctx, f)
	if err != nil {
		return nil, classify(err, "schedule")
	}
	return list, nil
}

func (s *scheduleService) Create(ctx context.Context, id domain.Identity, entry domain.Schedule) (*domain.Schedule, error) {
	if err := s.policy.Authorize(OpScheduleCreate, id); err != nil {
		return nil, err
	}
	if err := validateSchedule(&entry); err != nil {
		return nil, err
	}

	entry.ID = 0
	entry.AuthorID = id.UserID
	entry.CreatedAt = s.now()
	if entry.Type == "" {
		entry.Type = domain.ScheduleTypeLesson
	}
	if entry.TargetUsers == "" {
		entry.TargetUsers = domain.BroadcastAll
	}

	if err := s.schedule.Create(context.WithoutCancel(ctx), &entry); err != nil {
		return nil, classify(err, "schedule")
	}
	s.logger.Infow("schedule entry created", "schedule_id", entry.ID, "author_id", id.UserID)
	return &entry, nil
}

func (s *scheduleService) Update(ctx context.Context, id domain.Identity, scheduleID domain.ScheduleID, p domain.SchedulePatch) (*domain.Schedule, error) {
	if err := s.policy.Authorize(OpScheduleUpdate, id); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	entry, err := s.editable(ctx, id, scheduleID)
	if err != nil {
		return nil, err
	}
	entry.Apply(p)
	if err := validateSchedule(entry); err != nil {
		return nil, err
	}
	if err := s.schedule.Update(ctx, entry); err != nil {
		return nil, classify(err, "schedule")
	}
	return entry, nil
}

func (s *scheduleService) Delete(ctx context.Context, id domain.Identity, scheduleID domain.ScheduleID) error {
	if err := s.policy.Authorize(OpScheduleDelete, id); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	if _, err := s.editable(ctx, id, scheduleID); err != nil {
		return err
	}
	if err := s.schedule.Delete(ctx, scheduleID); err != nil {
		return classify(err, "schedule")
	}
	s.logger.Infow("schedule entry deleted", "schedule_id", scheduleID, "by", id.UserID)
	return nil
}

// editable hides entries the caller may not change behind NotFound.
func (s *scheduleService) editable(ctx context.Context, id domain.Identity, scheduleID domain.ScheduleID) (*domain.Schedule, error) {
	entry, err := s.schedule.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, classify(err, "schedule")
	}
	if !entry.EditableBy(id) {
		return nil, apperrors.NewNotFoundError("schedule")
	}
	return entry, nil
}

func validateSchedule(s *domain.Schedule) error {
	if err := validation.ValidateNonEmptyString(s.Title, "title"); err != nil {
		return err
	}
	if s.StartTime.IsZero() {
		return apperrors.NewValidationError("start_time", "start_time is required")
	}
	if s.EndTime.IsZero() {
		return apperrors.NewValidationError("end_time", "end_time is required")
	}
	if !s.EndTime.After(s.StartTime) {
		return apperrors.NewValidationError("end_time", "end_time must be after start_time")
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return nil
}
