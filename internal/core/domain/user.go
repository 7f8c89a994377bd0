package domain

import (
	"fmt"
	"strings"
	"time"
)

type UserID uint

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Roles lists every known role.
var Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// IsPrivileged reports whether the role may author content and broadcast.
func (r Role) IsPrivileged() bool {
	return r == RoleTeacher || r == RoleAdmin
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

const (
	LevelBeginner = "beginner"
	LevelAdmin    = "10"

	AdminXP     = 5000
	AdminStreak = 30
)

type User struct {
	ID           UserID     `json:"id"`
	TelegramID   string     `json:"telegram_id"`
	Role         Role       `json:"role"`
	Name         string     `json:"name"`
	Surname      string     `json:"surname"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	School       string     `json:"school,omitempty"`
	Class        string     `json:"class,omitempty"`
	Subjects     []string   `json:"subjects"`
	PhotoURL     string     `json:"photo_url,omitempty"`
	Level        string     `json:"level"`
	XP           int        `json:"xp"`
	Streak       int        `json:"streak"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

func (u *User) Identity() Identity {
	return Identity{
		UserID:     u.ID,
		TelegramID: u.TelegramID,
		Role:       u.Role,
		Class:      u.Class,
		Name:       u.Name,
		Surname:    u.Surname,
	}
}

// Identity is the authenticated caller as resolved from the store.
type Identity struct {
	UserID     UserID
	TelegramID string
	Role       Role
	Class      string
	Name       string
	Surname    string
}

// ProfileUpdate carries the user-editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string
	Surname   *string
	BirthDate *time.Time
	Phone     *string
	School    *string
	Class     *string
	Subjects  []string
	PhotoURL  *string
}

func (u *User) Apply(p ProfileUpdate) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Surname != nil {
		u.Surname = *p.Surname
	}
	if p.BirthDate != nil {
		u.BirthDate = p.BirthDate
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.School != nil {
		u.School = *p.School
	}
	if p.Class != nil {
		u.Class = *p.Class
	}
	if p.Subjects != nil {
		u.Subjects = p.Subjects
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
}

// StudentQuery filters the teacher-facing student list.
type StudentQuery struct {
	Search string
	Class  string
	Offset int
	Limit  int
}
