package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// MaterialCompletionXP is awarded once per material when progress first reaches 100.
const MaterialCompletionXP = 50

const (
	AchievementMaterialCompleted = "material_completed"
	AchievementAdminWelcome      = "admin_welcome"
)

type Progress struct {
	ID                 uint       `json:"id"`
	UserID             UserID     `json:"user_id"`
	MaterialID         MaterialID `json:"material_id"`
	ProgressPercentage int        `json:"progress_percentage"`
	TimeSpent          int        `json:"time_spent"`
	LastAccessed       time.Time  `json:"last_accessed"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

func (p *Progress) Completed() bool {
	return p.CompletedAt != nil
}

// ProgressChange is the outcome of recording progress.
type ProgressChange struct {
	Progress Progress `json:"progress"`
	// JustCompleted is true only for the update that first reached 100.
	JustCompleted bool `json:"just_completed"`
	XPAwarded     int  `json:"xp_awarded"`
}

type Achievement struct {
	ID          uint      `json:"id"`
	UserID      UserID    `json:"user_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BadgeURL    string    `json:"badge_url,omitempty"`
	XPReward    int       `json:"xp_reward"`
	EarnedAt    time.Time `json:"earned_at"`
}

type TestID uint

// Answer is a free-form answer. Numeric JSON values are accepted and kept as text.
type Answer string

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Answer(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Answer(n.String())
	return nil
}

func (a Answer) matches(other Answer) bool {
	return strings.EqualFold(strings.TrimSpace(string(a)), strings.TrimSpace(string(other)))
}

const DefaultTimeLimit = 600

type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer Answer   `json:"correct_answer,omitempty"`
}

type Test struct {
	ID         TestID     `json:"id"`
	Title      string     `json:"title"`
	Subject    string     `json:"subject"`
	Questions  []Question `json:"questions"`
	TimeLimit  int        `json:"time_limit"`
	Difficulty string     `json:"difficulty"`
	AuthorID   UserID     `json:"author_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Score counts answers matching the correct answer at the same index.
func (t *Test) Score(answers []Answer) int {
	score := 0
	for i, q := range t.Questions {
		if i < len(answers) && answers[i].matches(q.CorrectAnswer) {
			score++
		}
	}
	return score
}

// WithoutAnswers returns a copy safe to show to students.
func (t Test) WithoutAnswers() Test {
	qs := make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		qs[i] = Question{Question: q.Question, Options: q.Options}
	}
	t.Questions = qs
	return t
}

type TestResult struct {
	ID             uint      `json:"id"`
	UserID         UserID    `json:"user_id"`
	TestID         TestID    `json:"test_id"`
	TestTitle      string    `json:"test_title,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     int       `json:"percentage"`
	TimeTaken      int       `json:"time_taken"`
	Answers        []Answer  `json:"answers"`
	XPAwarded      int       `json:"xp_awarded"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Percentage rounds score/total to the nearest whole percent.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(score) * 100 / float64(total)))
}

// ResubmissionXP awards only the improvement over the best earlier attempt.
func ResubmissionXP(percentage, bestPrevious int, hasPrevious bool) int {
	if !hasPrevious {
		return percentage
	}
	if percentage <= bestPrevious {
		return 0
	}
	return percentage - bestPrevious
}

// Grade buckets a percentage into a letter grade.
func Grade(percentage int) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 50:
		return "C"
	default:
		return "D"
	}
}

// TestSubmission is returned to the student after scoring.
type TestSubmission struct {
	ResultID       uint `json:"result_id"`
	Score          int  `json:"score"`
	TotalQuestions int  `json:"total_questions"`
	Percentage     int  `json:"percentage"`
	XPEarned       int  `json:"xp_earned"`
	BestPercentage int  `json:"best_percentage"`
}
