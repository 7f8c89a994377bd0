package domain

import (
	"encoding/json"
	"time"
)

type MaterialID uint

type MaterialStatus string

const (
	StatusDraft     MaterialStatus = "draft"
	StatusPublished MaterialStatus = "published"
)

const (
	DefaultDifficulty = "medium"
	DefaultDuration   = 15
)

// Difficulties lists the accepted difficulty values.
var Difficulties = []string{"easy", "medium", "hard"}

// Material is a learning material. Version grows by one on every committed change
// and doubles as the optimistic concurrency token.
type Material struct {
	ID          MaterialID     `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	Type        string         `json:"type"`
	Subject     string         `json:"category"`
	Difficulty  string         `json:"difficulty"`
	Duration    int            `json:"duration"`
	AuthorID    UserID         `json:"teacherId"`
	AuthorName  string         `json:"teacherName,omitempty"`
	Status      MaterialStatus `json:"status"`
	ViewsCount  int            `json:"viewsCount"`
	FileURL     string         `json:"fileUrl,omitempty"`
	Tags        []string       `json:"tags"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
}

func (m Material) MarshalJSON() ([]byte, error) {
	type plain Material
	return json.Marshal(struct {
		plain
		IsPublished bool `json:"isPublished"`
	}{plain(m), m.IsPublished()})
}

func (m *Material) IsPublished() bool {
	return m.Status == StatusPublished
}

// Publish moves a draft to published. published_at is set only the first time.
// It reports whether the status changed.
func (m *Material) Publish(now time.Time) bool {
	if m.Status == StatusPublished {
		return false
	}
	m.Status = StatusPublished
	if m.PublishedAt == nil {
		t := now
		m.PublishedAt = &t
	}
	return true
}

// Unpublish moves a published material back to draft and reports whether the status changed.
func (m *Material) Unpublish() bool {
	if m.Status != StatusPublished {
		return false
	}
	m.Status = StatusDraft
	return true
}

// VisibleTo reports whether id may read the material.
func (m *Material) VisibleTo(id Identity) bool {
	return m.IsPublished() || m.AuthorID == id.UserID || id.Role == RoleAdmin
}

// EditableBy reports whether id may change or delete the material.
func (m *Material) EditableBy(id Identity) bool {
	if id.Role == RoleAdmin {
		return true
	}
	return id.Role == RoleTeacher && m.AuthorID == id.UserID
}

// MaterialPatch is a partial update. Nil fields are left unchanged.
type MaterialPatch struct {
	Title       *string
	Description *string
	Content     *string
	Type        *string
	Subject     *string
	Difficulty  *string
	Duration    *int
	FileURL     *string
	Tags        []string
	IsPublished *bool
	// Version, when set, must match the stored version.
	Version *int
}

// Apply merges the patch and reports whether any field changed.
func (m *Material) Apply(p MaterialPatch, now time.Time) bool {
	changed := false
	setStr := func(dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = true
		}
	}
	setStr(&m.Title, p.Title)
	setStr(&m.Description, p.Description)
	setStr(&m.Content, p.Content)
	setStr(&m.Type, p.Type)
	setStr(&m.Subject, p.Subject)
	setStr(&m.Difficulty, p.Difficulty)
	setStr(&m.FileURL, p.FileURL)
	if p.Duration != nil && m.Duration != *p.Duration {
		m.Duration = *p.Duration
		changed = true
	}
	if p.Tags != nil && !equalStrings(m.Tags, p.Tags) {
		m.Tags = p.Tags
		changed = true
	}
	if p.IsPublished != nil {
		if *p.IsPublished {
			changed = m.Publish(now) || changed
		} else {
			changed = m.Unpublish() || changed
		}
	}
	return changed
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MaterialFilter selects published materials for listings.
type MaterialFilter struct {
	Subject string
	Type    string
	Offset  int
	Limit   int
}

// AuthorFilter selects one author's materials, drafts included.
type AuthorFilter struct {
	AuthorID UserID
	Status   MaterialStatus
	Subject  string
}

// MaterialStats aggregates learner progress for one material.
type MaterialStats struct {
	TotalViews     int     `json:"total_views"`
	CompletedCount int64   `json:"completed_count"`
	AvgProgress    float64 `json:"avg_progress"`
	AvgTimeSpent   float64 `json:"avg_time_spent"`
}

// MaterialInput is the payload for creating a material. AuthorID is honoured only for admins.
type MaterialInput struct {
	Title       string
	Description string
	Content     string
	Type        string
	Subject     string
	Difficulty  string
	Duration    int
	FileURL     string
	Tags        []string
	IsPublished bool
	AuthorID    *UserID
}
