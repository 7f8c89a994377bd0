package domain

import (
	"encoding/json"
	"time"
)

type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int64  `json:"count"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type Overview struct {
	TotalUsers      int64          `json:"totalUsers"`
	TotalMaterials  int64          `json:"totalMaterials"`
	TotalTests      int64          `json:"totalTests"`
	ActiveUsers     int64          `json:"activeUsers"`
	DailyActivity   []DailyCount   `json:"dailyActivity"`
	PopularSubjects []SubjectCount `json:"popularSubjects"`
}

type StudentRanking struct {
	ID                 UserID `json:"id"`
	Name               string `json:"name"`
	Surname            string `json:"surname"`
	Class              string `json:"class,omitempty"`
	XP                 int    `json:"xp"`
	Streak             int    `json:"streak"`
	Level              string `json:"level"`
	CompletedMaterials int64  `json:"completedMaterials"`
}

type LevelBucket struct {
	Level string `json:"level"`
	Count int64  `json:"count"`
}

type ClassActivity struct {
	Class    string  `json:"class"`
	Students int64   `json:"students"`
	AvgXP    float64 `json:"avgXp"`
}

type StudentsReport struct {
	TopStudents       []StudentRanking `json:"topStudents"`
	LevelDistribution []LevelBucket    `json:"levelDistribution"`
	ClassActivity     []ClassActivity  `json:"classActivity"`
}

type MaterialPopularity struct {
	ID          MaterialID `json:"id"`
	Title       string     `json:"title"`
	Subject     string     `json:"subject"`
	Views       int        `json:"views"`
	Completions int64      `json:"completions"`
	AvgProgress float64    `json:"avgProgress"`
}

type SubjectStats struct {
	Subject    string `json:"subject"`
	Materials  int64  `json:"materials"`
	TotalViews int64  `json:"totalViews"`
}

type MaterialsReport struct {
	PopularMaterials []MaterialPopularity `json:"popularMaterials"`
	SubjectStats     []SubjectStats       `json:"subjectStats"`
}

type TestAggregate struct {
	TestID        TestID  `json:"testId"`
	Title         string  `json:"title"`
	Subject       string  `json:"subject"`
	Attempts      int64   `json:"attempts"`
	AvgPercentage float64 `json:"avgPercentage"`
}

type GradeBucket struct {
	Grade string `json:"grade"`
	Count int64  `json:"count"`
}

type TestsReport struct {
	TestResults       []TestAggregate `json:"testResults"`
	ScoreDistribution []GradeBucket   `json:"scoreDistribution"`
}

type ClassStats struct {
	Class         string  `json:"class"`
	TotalStudents int64   `json:"totalStudents"`
	AvgXP         float64 `json:"avgXp"`
	AvgStreak     float64 `json:"avgStreak"`
}

type ClassReport struct {
	ClassStats  ClassStats       `json:"classStats"`
	TopStudents []StudentRanking `json:"topStudents"`
}

// SubjectProgress summarises one student's progress within a subject.
type SubjectProgress struct {
	Subject     string  `json:"subject"`
	Started     int64   `json:"started"`
	Completed   int64   `json:"completed"`
	AvgProgress float64 `json:"avg_progress"`
	TimeSpent   int64   `json:"time_spent"`
}

// Activity is a progress row joined with its material.
type Activity struct {
	MaterialID         MaterialID `json:"material_id"`
	Title              string     `json:"title"`
	Subject            string     `json:"subject"`
	ProgressPercentage int        `json:"progress_percentage"`
	TimeSpent          int        `json:"time_spent"`
	LastAccessed       time.Time  `json:"last_accessed"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

type StudentDashboard struct {
	User           User              `json:"user"`
	Subjects       []SubjectProgress `json:"subjects"`
	RecentActivity []Activity        `json:"recent_activity"`
	Achievements   []Achievement     `json:"achievements"`
	TestResults    []TestResult      `json:"test_results"`
}

// StudentDetail is the teacher's view of one student.
type StudentDetail struct {
	User         User          `json:"user"`
	Progress     []Activity    `json:"progress"`
	TestResults  []TestResult  `json:"test_results"`
	Achievements []Achievement `json:"achievements"`
}

// StudentSummary is one row of the teacher's student list.
type StudentSummary struct {
	User
	CompletedMaterials int64   `json:"completed_materials"`
	AvgTestScore       float64 `json:"avg_test_score"`
}

// MaterialWithProgress decorates a material with the caller's progress.
type MaterialWithProgress struct {
	Material
	ProgressPercentage int        `json:"progress"`
	TimeSpent          int        `json:"timeSpent"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// MarshalJSON flattens the material and progress fields into one object.
func (m MaterialWithProgress) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(m.Material)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	extra := map[string]interface{}{
		"progress":  m.ProgressPercentage,
		"timeSpent": m.TimeSpent,
	}
	if m.CompletedAt != nil {
		extra["completedAt"] = m.CompletedAt
	}
	for k, v := range extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}
