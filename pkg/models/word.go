package models

import "time"

// Word represents a vocabulary entry the user is learning
type Word struct {
	ID             string     `json:"id"`
	Term           string     `json:"term"`
	Definition     string     `json:"definition"`
	Tier           int        `json:"tier"`   // Mastery tier, 0 (new) .. 7 (mastered)
	DueAt          time.Time  `json:"due_at"` // Next time the word should be prompted
	CreatedAt      time.Time  `json:"created_at"`
	LastAnsweredAt *time.Time `json:"last_answered_at,omitempty"`
	CorrectCount   int        `json:"correct_count"`
	IncorrectCount int        `json:"incorrect_count"`
}

// IsOverdue reports whether the word is due at or before now
func (w Word) IsOverdue(now time.Time) bool {
	return !w.DueAt.After(now)
}
