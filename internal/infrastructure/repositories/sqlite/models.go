package sqlite

import (
	"time"

	"physlab/internal/core/domain"
)

type userModel struct {
	ID           uint       `gorm:"primaryKey"`
	TelegramID   string     `gorm:"size:64;uniqueIndex;not null"`
	Role         string     `gorm:"size:16;not null;default:student;index"`
	Name         string     `gorm:"size:100"`
	Surname      string     `gorm:"size:100"`
	BirthDate    *time.Time
	Phone        string   `gorm:"size:32"`
	School       string   `gorm:"size:200"`
	Class        string   `gorm:"size:32;index"`
	Subjects     []string `gorm:"serializer:json"`
	PhotoURL     string   `gorm:"size:500"`
	Level        string   `gorm:"size:32;not null;default:beginner"`
	XP           int      `gorm:"not null;default:0"`
	Streak       int      `gorm:"not null;default:0"`
	LastActivity *time.Time
	CreatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

func newUserModel(u *domain.User) *userModel {
	return &userModel{
		ID:           uint(u.ID),
		TelegramID:   u.TelegramID,
		Role:         string(u.Role),
		Name:         u.Name,
		Surname:      u.Surname,
		BirthDate:    u.BirthDate,
		Phone:        u.Phone,
		School:       u.School,
		Class:        u.Class,
		Subjects:     u.Subjects,
		PhotoURL:     u.PhotoURL,
		Level:        u.Level,
		XP:           u.XP,
		Streak:       u.Streak,
		LastActivity: u.LastActivity,
		CreatedAt:    u.CreatedAt,
	}
}

func (m *userModel) toDomain() *domain.User {
	subjects := m.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return &domain.User{
		ID:           domain.UserID(m.ID),
		TelegramID:   m.TelegramID,
		Role:         domain.Role(m.Role),
		Name:         m.Name,
		Surname:      m.Surname,
		BirthDate:    m.BirthDate,
		Phone:        m.Phone,
		School:       m.School,
		Class:        m.Class,
		Subjects:     subjects,
		PhotoURL:     m.PhotoURL,
		Level:        m.Level,
		XP:           m.XP,
		Streak:       m.Streak,
		LastActivity: m.LastActivity,
		CreatedAt:    m.CreatedAt,
	}
}

type materialModel struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text"`
	Content     string    `gorm:"type:text"`
	Type        string    `gorm:"size:32;not null"`
	Subject     string    `gorm:"size:64;not null;index"`
	Difficulty  string    `gorm:"size:16;not null;default:medium"`
	Duration    int       `gorm:"not null;default:15"`
	AuthorID    uint      `gorm:"not null;index"`
	Author      userModel `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Status      string    `gorm:"size:16;not null;default:draft;index"`
	ViewsCount  int       `gorm:"not null;default:0"`
	FileURL     string    `gorm:"size:500"`
	Tags        []string  `gorm:"serializer:json"`
	Version     int       `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

func (materialModel) TableName() string { return "educational_materials" }

func newMaterialModel(m *domain.Material) *materialModel {
	return &materialModel{
		ID:          uint(m.ID),
		Title:       m.Title,
		Description: m.Description,
		Content:     m.Content,
		Type:        m.Type,
		Subject:     m.Subject,
		Difficulty:  m.Difficulty,
		Duration:    m.Duration,
		AuthorID:    uint(m.AuthorID),
		Status:      string(m.Status),
		ViewsCount:  m.ViewsCount,
		FileURL:     m.FileURL,
		Tags:        m.Tags,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		PublishedAt: m.PublishedAt,
	}
}

func (m *materialModel) toDomain() *domain.Material {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return &domain.Material{
		ID:          domain.MaterialID(m.ID),
		Title:       m.Title,
		Description: m.Description,
		Content:     m.Content,
		Type:        m.Type,
		Subject:     m.Subject,
		Difficulty:  m.Difficulty,
		Duration:    m.Duration,
		AuthorID:    domain.UserID(m.AuthorID),
		AuthorName:  m.Author.toDomain().FullName(),
		Status:      domain.MaterialStatus(m.Status),
		ViewsCount:  m.ViewsCount,
		FileURL:     m.FileURL,
		Tags:        tags,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		PublishedAt: m.PublishedAt,
	}
}

type progressModel struct {
	ID                 uint          `gorm:"primaryKey"`
	UserID             uint          `gorm:"not null;uniqueIndex:idx_progress_user_material"`
	User               userModel     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	MaterialID         uint          `gorm:"not null;uniqueIndex:idx_progress_user_material;index"`
	Material           materialModel `gorm:"foreignKey:MaterialID;constraint:OnDelete:CASCADE"`
	ProgressPercentage int           `gorm:"not null;default:0"`
	TimeSpent          int           `gorm:"not null;default:0"`
	LastAccessed       time.Time
	CompletedAt        *time.Time
}

func (progressModel) TableName() string { return "user_progress" }

func newProgressModel(p *domain.Progress) *progressModel {
	return &progressModel{
		ID:                 p.ID,
		UserID:             uint(p.UserID),
		MaterialID:         uint(p.MaterialID),
		ProgressPercentage: p.ProgressPercentage,
		TimeSpent:          p.TimeSpent,
		LastAccessed:       p.LastAccessed,
		CompletedAt:        p.CompletedAt,
	}
}

func (m *progressModel) toDomain() *domain.Progress {
	return &domain.Progress{
		ID:                 m.ID,
		UserID:             domain.UserID(m.UserID),
		MaterialID:         domain.MaterialID(m.MaterialID),
		ProgressPercentage: m.ProgressPercentage,
		TimeSpent:          m.TimeSpent,
		LastAccessed:       m.LastAccessed,
		CompletedAt:        m.CompletedAt,
	}
}

type achievementModel struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"not null;index"`
	User        userModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Type        string    `gorm:"size:64;not null"`
	Title       string    `gorm:"size:255"`
	Description string    `gorm:"type:text"`
	BadgeURL    string    `gorm:"size:500"`
	XPReward    int       `gorm:"not null;default:0"`
	EarnedAt    time.Time
}

func (achievementModel) TableName() string { return "achievements" }

func (m *achievementModel) toDomain() domain.Achievement {
	return domain.Achievement{
		ID:          m.ID,
		UserID:      domain.UserID(m.UserID),
		Type:        m.Type,
		Title:       m.Title,
		Description: m.Description,
		BadgeURL:    m.BadgeURL,
		XPReward:    m.XPReward,
		EarnedAt:    m.EarnedAt,
	}
}

type testModel struct {
	ID         uint              `gorm:"primaryKey"`
	Title      string            `gorm:"size:255;not null"`
	Subject    string            `gorm:"size:64;not null;index"`
	Questions  []domain.Question `gorm:"serializer:json"`
	TimeLimit  int               `gorm:"not null;default:600"`
	Difficulty string            `gorm:"size:16;not null;default:medium"`
	AuthorID   uint              `gorm:"not null;index"`
	Author     userModel         `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
}

func (testModel) TableName() string { return "tests" }

func (m *testModel) toDomain() *domain.Test {
	questions := m.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	return &domain.Test{
		ID:         domain.TestID(m.ID),
		Title:      m.Title,
		Subject:    m.Subject,
		Questions:  questions,
		TimeLimit:  m.TimeLimit,
		Difficulty: m.Difficulty,
		AuthorID:   domain.UserID(m.AuthorID),
		CreatedAt:  m.CreatedAt,
	}
}

type testResultModel struct {
	ID             uint            `gorm:"primaryKey"`
	UserID         uint            `gorm:"not null;index:idx_result_user_test"`
	User           userModel       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	TestID         uint            `gorm:"not null;index:idx_result_user_test"`
	Test           testModel       `gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE"`
	Score          int             `gorm:"not null"`
	TotalQuestions int             `gorm:"not null"`
	Percentage     int             `gorm:"not null"`
	TimeTaken      int             `gorm:"not null;default:0"`
	Answers        []domain.Answer `gorm:"serializer:json"`
	XPAwarded      int             `gorm:"not null;default:0"`
	CompletedAt    time.Time       `gorm:"index"`
}

func (testResultModel) TableName() string { return "test_results" }

func (m *testResultModel) toDomain() domain.TestResult {
	answers := m.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}
	return domain.TestResult{
		ID:             m.ID,
		UserID:         domain.UserID(m.UserID),
		TestID:         domain.TestID(m.TestID),
		TestTitle:      m.Test.Title,
		Subject:        m.Test.Subject,
		Score:          m.Score,
		TotalQuestions: m.TotalQuestions,
		Percentage:     m.Percentage,
		TimeTaken:      m.TimeTaken,
		Answers:        answers,
		XPAwarded:      m.XPAwarded,
		CompletedAt:    m.CompletedAt,
	}
}

type messageModel struct {
	ID          uint       `gorm:"primaryKey"`
	SenderID    uint       `gorm:"not null;index"`
	Sender      userModel  `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE"`
	RecipientID *uint      `gorm:"index"`
	Recipient   *userModel `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE"`
	Content     string     `gorm:"type:text;not null"`
	Type        string     `gorm:"size:32;not null;default:text"`
	Status      string     `gorm:"size:16;not null;default:sent"`
	IsBroadcast bool       `gorm:"not null;default:false"`
	TargetGroup string     `gorm:"size:64"`
	SentAt      time.Time  `gorm:"index"`
	ReadAt      *time.Time
}

func (messageModel) TableName() string { return "messages" }

func newMessageModel(m *domain.Message) *messageModel {
	var recipient *uint
	if m.RecipientID != nil {
		id := uint(*m.RecipientID)
		recipient = &id
	}
	return &messageModel{
		ID:          uint(m.ID),
		SenderID:    uint(m.SenderID),
		RecipientID: recipient,
		Content:     m.Content,
		Type:        m.Type,
		Status:      m.Status,
		IsBroadcast: m.IsBroadcast,
		TargetGroup: m.TargetGroup,
		SentAt:      m.SentAt,
		ReadAt:      m.ReadAt,
	}
}

func (m *messageModel) toDomain() *domain.Message {
	var recipient *domain.UserID
	if m.RecipientID != nil {
		id := domain.UserID(*m.RecipientID)
		recipient = &id
	}
	return &domain.Message{
		ID:            domain.MessageID(m.ID),
		SenderID:      domain.UserID(m.SenderID),
		SenderName:    m.Sender.Name,
		SenderSurname: m.Sender.Surname,
		RecipientID:   recipient,
		Content:       m.Content,
		Type:          m.Type,
		Status:        m.Status,
		IsBroadcast:   m.IsBroadcast,
		TargetGroup:   m.TargetGroup,
		SentAt:        m.SentAt,
		ReadAt:        m.ReadAt,
	}
}

type scheduleModel struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text"`
	StartTime   time.Time `gorm:"not null;index"`
	EndTime     time.Time `gorm:"not null"`
	Type        string    `gorm:"size:32;not null;default:lesson"`
	Subject     string    `gorm:"size:64"`
	Teacher     string    `gorm:"size:200"`
	Classroom   string    `gorm:"size:64"`
	TargetUsers string    `gorm:"size:64;not null;default:all"`
	AuthorID    uint      `gorm:"not null;index"`
	Author      userModel `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
}

func (scheduleModel) TableName() string { return "schedule" }

func newScheduleModel(s *domain.Schedule) *scheduleModel {
	return &scheduleModel{
		ID:          uint(s.ID),
		Title:       s.Title,
		Description: s.Description,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Type:        s.Type,
		Subject:     s.Subject,
		Teacher:     s.Teacher,
		Classroom:   s.Classroom,
		TargetUsers: s.TargetUsers,
		AuthorID:    uint(s.AuthorID),
		CreatedAt:   s.CreatedAt,
	}
}

func (m *scheduleModel) toDomain() *domain.Schedule {
	return &domain.Schedule{
		ID:          domain.ScheduleID(m.ID),
		Title:       m.Title,
		Description: m.Description,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		Type:        m.Type,
		Subject:     m.Subject,
		Teacher:     m.Teacher,
		Classroom:   m.Classroom,
		TargetUsers: m.TargetUsers,
		AuthorID:    domain.UserID(m.AuthorID),
		CreatedAt:   m.CreatedAt,
	}
}
