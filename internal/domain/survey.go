/**
 * @description
 * This file defines the survey catalog and per-account assignment models.
 * Surveys are simple catalog rows; assignments track one account's progress
 * through one survey and are unique per (account, survey) pair.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Assignment lifecycle states.
const (
	AssignmentStatusAssigned  = "assigned"
	AssignmentStatusStarted   = "started"
	AssignmentStatusCompleted = "completed"
	AssignmentStatusAbandoned = "abandoned"
)

// Survey maps to the `surveys` catalog table.
type Survey struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	RewardCents    int64     `json:"reward_cents"`
	EstimatedTime  int       `json:"estimated_time"` // minutes
	Category       string    `json:"category"`
	Difficulty     string    `json:"difficulty"`
	IsActive       bool      `json:"is_active"`
	IsPremiumOnly  bool      `json:"is_premium_only"`
	QuestionsCount int       `json:"questions_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// SurveyAssignment maps to the `survey_assignments` table.
type SurveyAssignment struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	SurveyID      uuid.UUID  `json:"survey_id"`
	Status        string     `json:"status"`
	AssignedAt    time.Time  `json:"assigned_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	EarningsCents *int64     `json:"earnings_cents,omitempty"`
}
