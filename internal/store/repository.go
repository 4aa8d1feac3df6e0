/**
 * @description
 * This file defines the data access contract for the service and the sentinel
 * errors the persistence layer reports. The application layer depends on this
 * interface only, which lets tests substitute an in-memory fake.
 *
 * @dependencies
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Frankie466/frank-quiz/internal/domain"
)

var (
	ErrAccountNotFound          = errors.New("account not found")
	ErrDuplicatePhone           = errors.New("phone number already registered")
	ErrDuplicateReferralCode    = errors.New("referral code already taken")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrPaymentNotFound          = errors.New("pending payment not found")
	ErrDuplicateCheckoutRequest = errors.New("checkout request id already tracked")
	ErrPaymentAlreadySettled    = errors.New("pending payment already settled")
	ErrAlreadyPremium           = errors.New("account is already premium")
	ErrSurveyNotFound           = errors.New("survey not found")
	ErrSurveyNotAvailable       = errors.New("survey not available for this account")
	ErrSurveyAlreadyCompleted   = errors.New("survey already completed")
)

// Repository is the persistence contract the application service operates on.
// Every method that mutates an account balance must apply the ledger append and
// the balance change inside one database transaction.
type Repository interface {
	// Accounts
	CreateAccount(ctx context.Context, account *domain.Account, welcomeBonusCents int64) error
	FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByReferralCode(ctx context.Context, code string) (*domain.Account, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID) error

	// Ledger
	RecordEarning(ctx context.Context, accountID uuid.UUID, amountCents int64, description string) error
	RecordBonus(ctx context.Context, accountID uuid.UUID, amountCents int64, description string) error
	Withdraw(ctx context.Context, accountID uuid.UUID, amountCents int64, mpesaPhone string) error
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error)

	// Entitlement
	ActivatePremium(ctx context.Context, accountID uuid.UUID, bonusCents int64) error
	AddReferralBonus(ctx context.Context, accountID uuid.UUID, amountCents int64, description string) error

	// Pending payments
	CreatePendingPayment(ctx context.Context, payment *domain.PendingPayment) error
	FindPendingPaymentByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.PendingPayment, error)
	CompletePendingPayment(ctx context.Context, checkoutRequestID string, details domain.SettlementDetails, resultCode int, resultDesc string) error
	FailPendingPayment(ctx context.Context, checkoutRequestID string, resultCode int, resultDesc string) error
	ListStalePendingPayments(ctx context.Context, olderThan time.Time) ([]domain.PendingPayment, error)

	// Surveys
	ListAvailableSurveys(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Survey, error)
	FindSurveyByID(ctx context.Context, surveyID uuid.UUID) (*domain.Survey, error)
	StartSurvey(ctx context.Context, accountID, surveyID uuid.UUID) error
	CompleteSurvey(ctx context.Context, accountID, surveyID uuid.UUID) (int64, error)
	SeedSurveys(ctx context.Context, surveys []domain.Survey) error
}
