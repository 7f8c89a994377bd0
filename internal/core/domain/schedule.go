package domain

import "time"

type ScheduleID uint

type Schedule struct {
	ID          ScheduleID `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Type        string     `json:"type"`
	Subject     string     `json:"subject,omitempty"`
	Teacher     string     `json:"teacher,omitempty"`
	Classroom   string     `json:"classroom,omitempty"`
	TargetUsers string     `json:"target_users"`
	AuthorID    UserID     `json:"author_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

const ScheduleTypeLesson = "lesson"

// ScheduleFilter narrows listings. Zero values mean unbounded.
type ScheduleFilter struct {
	From time.Time
	To   time.Time
	Type string
}

// SchedulePatch is a partial update. Nil fields are left unchanged.
type SchedulePatch struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
	Type        *string
	Subject     *string
	Teacher     *string
	Classroom   *string
	TargetUsers *string
}

func (s *Schedule) Apply(p SchedulePatch) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.StartTime != nil {
		s.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		s.EndTime = *p.EndTime
	}
	if p.Type != nil {
		s.Type = *p.Type
	}
	if p.Subject != nil {
		s.Subject = *p.Subject
	}
	if p.Teacher != nil {
		s.Teacher = *p.Teacher
	}
	if p.Classroom != nil {
		s.Classroom = *p.Classroom
	}
	if p.TargetUsers != nil {
		s.TargetUsers = *p.TargetUsers
	}
}

// EditableBy reports whether id may change or delete the entry.
func (s *Schedule) EditableBy(id Identity) bool {
	return id.Role == RoleAdmin || (id.Role == RoleTeacher && s.AuthorID == id.UserID)
}
