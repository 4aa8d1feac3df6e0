/**
 * @description
 * This file contains the core business logic for account lifecycle and wallet
 * operations. The `Service` struct orchestrates registration, login, the
 * dashboard summary, and withdrawals, coordinating between the database
 * repository, the Daraja payment gateway client, and the message broker.
 *
 * Key features:
 * - Registration and login operate on the canonical phone identity produced by
 *   the phone package, so equivalent input forms map to one account.
 * - PIN credentials are bcrypt-hashed and verified with constant-time compare.
 * - All balance-affecting operations go through repository methods that pair
 *   the ledger append with the balance update in one database transaction.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - golang.org/x/crypto/bcrypt: For PIN hashing.
 * - internal/domain, internal/store, internal/phone: Domain models and data access.
 * - pkg/darajaclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Frankie466/frank-quiz/internal/domain"
	"github.com/Frankie466/frank-quiz/internal/phone"
	"github.com/Frankie466/frank-quiz/internal/store"
	"github.com/Frankie466/frank-quiz/pkg/darajaclient"
	"github.com/Frankie466/frank-quiz/pkg/rabbitmq"
)

const (
	WelcomeBonus  = 50000 // 500 KES in cents, credited at registration
	PremiumBonus  = 50000 // 500 KES in cents, credited on premium activation
	ReferralBonus = 5000  // 50 KES in cents, credited to the referrer

	EventsExchange = "survey_events"
)

var (
	ErrInvalidPIN          = errors.New("PIN must be exactly 4 digits")
	ErrPINMismatch         = errors.New("PIN and confirmation do not match")
	ErrInvalidCredentials  = errors.New("invalid phone number or PIN")
	ErrUnknownReferralCode = errors.New("referral code not recognized")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
)

// PaymentGateway is the subset of the Daraja client the service depends on.
// Declared here so tests can substitute a fake gateway.
type PaymentGateway interface {
	InitiateStkPush(ctx context.Context, phoneNumber string, amountKES int64, callbackURL, accountReference, transactionDesc string) (*darajaclient.StkPushResponse, error)
}

// Service provides the core business logic for accounts, payments and surveys.
type Service struct {
	repo          store.Repository
	gateway       PaymentGateway
	eventProducer rabbitmq.Publisher
	rateLimiter   RateLimiter

	callbackURL        string
	premiumPriceKES    int64
	rateLimitPerMinute int
}

// NewService creates a new service instance. callbackURL is the fully formed
// public URL (token included) the provider posts STK callbacks to.
func NewService(repo store.Repository, gateway PaymentGateway, producer rabbitmq.Publisher, limiter RateLimiter, callbackURL string, premiumPriceKES int64, rateLimitPerMinute int) *Service {
	return &Service{
		repo:               repo,
		gateway:            gateway,
		eventProducer:      producer,
		rateLimiter:        limiter,
		callbackURL:        callbackURL,
		premiumPriceKES:    premiumPriceKES,
		rateLimitPerMinute: rateLimitPerMinute,
	}
}

// Register creates a new account for a canonical phone identity. Equivalent
// input forms ("0712...", "712...", "+254712...") resolve to the same identity
// key, so a second registration under any form reports ErrDuplicatePhone.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Account, error) {
	canonical, err := phone.Normalize(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := validatePIN(req.PIN); err != nil {
		return nil, err
	}
	if req.PIN != req.ConfirmPIN {
		return nil, ErrPINMismatch
	}

	var referredBy *uuid.UUID
	if req.ReferralCode != "" {
		referrer, err := s.repo.FindAccountByReferralCode(ctx, req.ReferralCode)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return nil, ErrUnknownReferralCode
			}
			return nil, fmt.Errorf("failed to look up referral code: %w", err)
		}
		referredBy = &referrer.ID
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash PIN: %w", err)
	}

	account := &domain.Account{
		ID:          uuid.New(),
		PhoneNumber: canonical,
		PINHash:     string(pinHash),
		ReferredBy:  referredBy,
	}

	// The generated code can collide with an existing account; retry with a
	// fresh code on the unique-violation sentinel. The welcome bonus is part
	// of the creation transaction, so an account never exists without it.
	for attempt := 0; ; attempt++ {
		account.ReferralCode = generateReferralCode()
		err = s.repo.CreateAccount(ctx, account, WelcomeBonus)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicateReferralCode) && attempt < 4 {
			continue
		}
		return nil, err
	}
	account.BalanceCents = WelcomeBonus

	if pubErr := s.eventProducer.Publish(ctx, EventsExchange, "user.registered", domain.UserRegisteredEvent{
		AccountID:   account.ID,
		PhoneNumber: canonical,
		ReferredBy:  referredBy,
		Timestamp:   time.Now().UTC(),
	}); pubErr != nil {
		log.Printf("level=warn component=service op=register account_id=%s msg=\"event publish failed\" err=%v", account.ID, pubErr)
	}

	log.Printf("level=info component=service op=register account_id=%s msg=\"account created\"", account.ID)
	return account, nil
}

// Login authenticates a phone/PIN pair. It fails closed: an unknown identity
// and a wrong PIN both report ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.Account, error) {
	canonical, err := phone.Normalize(req.PhoneNumber)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	account, err := s.repo.FindAccountByPhone(ctx, canonical)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PINHash), []byte(req.PIN)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.TouchLastLogin(ctx, account.ID); err != nil {
		log.Printf("level=warn component=service op=login account_id=%s msg=\"failed to record login time\" err=%v", account.ID, err)
	}

	return account, nil
}

// GetDashboard returns the account figures shown after login.
func (s *Service) GetDashboard(ctx context.Context, accountID uuid.UUID) (*domain.DashboardSummary, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.DashboardSummary{
		BalanceCents:     account.BalanceCents,
		TotalEarnedCents: account.TotalEarnedCents,
		SurveysCompleted: account.SurveysCompleted,
		IsPremium:        account.IsPremium,
	}, nil
}

// ListTransactions returns the most recent ledger entries for an account.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID, limit)
}

// Withdraw debits the wallet and opens a payout request toward the given
// M-Pesa number. ErrInsufficientBalance propagates from the repository.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, req domain.WithdrawRequest) (int64, error) {
	amountCents := int64(math.Round(req.Amount * 100))
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}

	payoutPhone := req.PhoneNumber
	if payoutPhone == "" {
		account, err := s.repo.FindAccountByID(ctx, accountID)
		if err != nil {
			return 0, err
		}
		payoutPhone = account.PhoneNumber
	}
	canonical, err := phone.Normalize(payoutPhone)
	if err != nil {
		return 0, err
	}

	if err := s.repo.Withdraw(ctx, accountID, amountCents, canonical); err != nil {
		return 0, err
	}

	log.Printf("level=info component=service op=withdraw account_id=%s amount_cents=%d msg=\"withdrawal request opened\"", accountID, amountCents)
	return amountCents, nil
}

func validatePIN(pin string) error {
	if len(pin) != 4 {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

const referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateReferralCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; fall back to a
		// uuid-derived code rather than aborting registration.
		id := uuid.New()
		copy(buf, id[:8])
	}
	code := make([]byte, 8)
	for i, b := range buf {
		code[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
	}
	return string(code)
}
