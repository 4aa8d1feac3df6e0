/**
 * @description
 * This file defines the account domain model. An account is the root entity of
 * the system: it carries the canonical phone identity, the PIN credential hash,
 * the denormalized wallet balance, and the premium entitlement flag.
 *
 * @notes
 * - Monetary values are stored as `int64` in cents (two implied decimal places)
 *   to avoid floating-point inaccuracies with financial data.
 * - PhoneNumber is always the canonical `+254XXXXXXXXX` form produced by the
 *   phone package. Raw user input must never reach this struct.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account maps directly to the `accounts` table.
type Account struct {
	ID                 uuid.UUID  `json:"id"`
	PhoneNumber        string     `json:"phone_number"`
	PINHash            string     `json:"-"`
	BalanceCents       int64      `json:"balance_cents"`
	TotalEarnedCents   int64      `json:"total_earned_cents"`
	IsPremium          bool       `json:"is_premium"`
	PremiumActivatedAt *time.Time `json:"premium_activated_at,omitempty"`
	ReferralCode       string     `json:"referral_code"`
	ReferredBy         *uuid.UUID `json:"referred_by,omitempty"`
	ReferralBonusCents int64      `json:"referral_bonus_cents"`
	SurveysCompleted   int        `json:"surveys_completed"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DisplayName returns a UI-safe label that never exposes the full identity key.
func (a *Account) DisplayName() string {
	if len(a.PhoneNumber) < 4 {
		return "User"
	}
	return "User " + a.PhoneNumber[len(a.PhoneNumber)-4:]
}

// RegisterRequest is the DTO for the registration endpoint.
type RegisterRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	PIN          string `json:"pin"`
	ConfirmPIN   string `json:"confirmPin"`
	ReferralCode string `json:"referralCode,omitempty"`
}

// LoginRequest is the DTO for the login endpoint.
type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	PIN         string `json:"pin"`
}

// DashboardSummary aggregates the account figures shown after login.
type DashboardSummary struct {
	BalanceCents     int64 `json:"balance_cents"`
	TotalEarnedCents int64 `json:"total_earned_cents"`
	SurveysCompleted int   `json:"surveys_completed"`
	IsPremium        bool  `json:"is_premium"`
}
