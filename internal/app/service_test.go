package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Frankie466/frank-quiz/internal/domain"
	"github.com/Frankie466/frank-quiz/internal/phone"
	"github.com/Frankie466/frank-quiz/internal/store"
)

type publisherStub struct {
	routingKeys []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *publisherStub) Close() {}

func (p *publisherStub) published(routingKey string) bool {
	for _, key := range p.routingKeys {
		if key == routingKey {
			return true
		}
	}
	return false
}

var testAccountID = uuid.New()

type registerRepoStubFull struct {
	store.Repository

	created           *domain.Account
	createErr         error
	createErrsOnce    []error
	createCalls       int
	createdBonusCents int64

	account *domain.Account

	referrer     *domain.Account
	referrerCode string

	withdrawnCents int64
	withdrawnPhone string
	withdrawErr    error
}

func (s *registerRepoStubFull) CreateAccount(ctx context.Context, account *domain.Account, welcomeBonusCents int64) error {
	s.createCalls++
	if len(s.createErrsOnce) > 0 {
		err := s.createErrsOnce[0]
		s.createErrsOnce = s.createErrsOnce[1:]
		return err
	}
	if s.createErr != nil {
		return s.createErr
	}
	s.created = account
	s.createdBonusCents = welcomeBonusCents
	return nil
}

func (s *registerRepoStubFull) FindAccountByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	if s.referrer != nil && code == s.referrerCode {
		return s.referrer, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *registerRepoStubFull) FindAccountByPhone(ctx context.Context, phoneNumber string) (*domain.Account, error) {
	if s.account != nil && s.account.PhoneNumber == phoneNumber {
		return s.account, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *registerRepoStubFull) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (s *registerRepoStubFull) Withdraw(ctx context.Context, accountID uuid.UUID, amountCents int64, mpesaPhone string) error {
	if s.withdrawErr != nil {
		return s.withdrawErr
	}
	s.withdrawnCents = amountCents
	s.withdrawnPhone = mpesaPhone
	return nil
}

func newRegisterService(repo store.Repository, producer *publisherStub) *Service {
	return NewService(repo, nil, producer, nil, "https://example.com/callback/t", 100, 5)
}

func TestRegister_CanonicalizesPhone(t *testing.T) {
	repo := &registerRepoStubFull{}
	producer := &publisherStub{}
	svc := newRegisterService(repo, producer)

	account, err := svc.Register(context.Background(), domain.RegisterRequest{
		PhoneNumber: "0712345678",
		PIN:         "1234",
		ConfirmPIN:  "1234",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if account.PhoneNumber != "+254712345678" {
		t.Fatalf("expected canonical phone +254712345678, got %q", account.PhoneNumber)
	}
	if account.PINHash == "" || account.PINHash == "1234" {
		t.Fatalf("PIN must be stored hashed, got %q", account.PINHash)
	}
	if len(account.ReferralCode) != 8 {
		t.Fatalf("expected 8-char referral code, got %q", account.ReferralCode)
	}
	if account.BalanceCents != WelcomeBonus {
		t.Fatalf("expected welcome bonus %d on balance, got %d", WelcomeBonus, account.BalanceCents)
	}
	if !producer.published("user.registered") {
		t.Fatalf("expected user.registered event, got %v", producer.routingKeys)
	}
}

func TestRegister_WelcomeBonusTravelsWithCreation(t *testing.T) {
	repo := &registerRepoStubFull{}
	svc := newRegisterService(repo, &publisherStub{})

	account, err := svc.Register(context.Background(), domain.RegisterRequest{
		PhoneNumber: "0712345678",
		PIN:         "1234",
		ConfirmPIN:  "1234",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if repo.createdBonusCents != WelcomeBonus {
		t.Fatalf("welcome bonus must be part of account creation, got %d", repo.createdBonusCents)
	}
	if account.BalanceCents != WelcomeBonus {
		t.Fatalf("expected balance %d after creation, got %d", WelcomeBonus, account.BalanceCents)
	}
	// The stub embeds the Repository interface; a separate bonus credit after
	// creation would have panicked on a nil method.
}

func TestRegister_RejectsBadPIN(t *testing.T) {
	svc := newRegisterService(&registerRepoStubFull{}, &publisherStub{})

	tests := []struct {
		name    string
		pin     string
		confirm string
		wantErr error
	}{
		{name: "too_short", pin: "123", confirm: "123", wantErr: ErrInvalidPIN},
		{name: "too_long", pin: "12345", confirm: "12345", wantErr: ErrInvalidPIN},
		{name: "non_numeric", pin: "12a4", confirm: "12a4", wantErr: ErrInvalidPIN},
		{name: "mismatch", pin: "1234", confirm: "4321", wantErr: ErrPINMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), domain.RegisterRequest{
				PhoneNumber: "0712345678",
				PIN:         tt.pin,
				ConfirmPIN:  tt.confirm,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegister_RejectsInvalidPhone(t *testing.T) {
	svc := newRegisterService(&registerRepoStubFull{}, &publisherStub{})

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		PhoneNumber: "0812345678",
		PIN:         "1234",
		ConfirmPIN:  "1234",
	})
	if !errors.Is(err, phone.ErrInvalidFormat) {
		t.Fatalf("expected phone.ErrInvalidFormat, got %v", err)
	}
}

func TestRegister_DuplicatePhonePropagates(t *testing.T) {
	repo := &registerRepoStubFull{createErr: store.ErrDuplicatePhone}
	svc := newRegisterService(repo, &publisherStub{})

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		PhoneNumber: "712345678",
		PIN:         "1234",
		ConfirmPIN:  "1234",
	})
	if !errors.Is(err, store.ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestRegister_RetriesReferralCodeCollision(t *testing.T) {
	repo := &registerRepoStubFull{createErrsOnce: []error{store.ErrDuplicateReferralCode, store.ErrDuplicateReferralCode}}
	svc := newRegisterService(repo, &publisherStub{})

	account, err := svc.Register(context.Background(), domain.RegisterRequest{
		PhoneNumber: "0712345678",
		PIN:         "1234",
		ConfirmPIN:  "1234",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if repo.createCalls != 3 {
		t.Fatalf("expected 3 create attempts, got %d", repo.createCalls)
	}
	if account.ReferralCode == "" {
		t.Fatalf("expected referral code after retries")
	}
}

func TestRegister_UnknownReferralCode(t *testing.T) {
	svc := newRegisterService(&registerRepoStubFull{}, &publisherStub{})

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		PhoneNumber:  "0712345678",
		PIN:          "1234",
		ConfirmPIN:   "1234",
		ReferralCode: "NOPE1234",
	})
	if !errors.Is(err, ErrUnknownReferralCode) {
		t.Fatalf("expected ErrUnknownReferralCode, got %v", err)
	}
}

func TestLogin_FailsClosed(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test PIN: %v", err)
	}
	repo := &registerRepoStubFull{account: &domain.Account{
		PhoneNumber: "+254712345678",
		PINHash:     string(hash),
	}}
	svc := newRegisterService(repo, &publisherStub{})

	tests := []struct {
		name  string
		phone string
		pin   string
	}{
		{name: "unknown_phone", phone: "0700000000", pin: "1234"},
		{name: "wrong_pin", phone: "0712345678", pin: "9999"},
		{name: "malformed_phone", phone: "garbage", pin: "1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), domain.LoginRequest{PhoneNumber: tt.phone, PIN: tt.pin})
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestLogin_AcceptsEquivalentPhoneForms(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test PIN: %v", err)
	}
	repo := &registerRepoStubFull{account: &domain.Account{
		PhoneNumber: "+254712345678",
		PINHash:     string(hash),
	}}
	svc := newRegisterService(repo, &publisherStub{})

	for _, form := range []string{"0712345678", "712345678", "+254712345678"} {
		if _, err := svc.Login(context.Background(), domain.LoginRequest{PhoneNumber: form, PIN: "1234"}); err != nil {
			t.Fatalf("Login(%q) returned error: %v", form, err)
		}
	}
}

func TestWithdraw_RejectsNonPositiveAmount(t *testing.T) {
	svc := newRegisterService(&registerRepoStubFull{}, &publisherStub{})

	for _, amount := range []float64{0, -5} {
		_, err := svc.Withdraw(context.Background(), testAccountID, domain.WithdrawRequest{Amount: amount, PhoneNumber: "0712345678"})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Withdraw(%v) expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestWithdraw_ConvertsToCents(t *testing.T) {
	repo := &registerRepoStubFull{}
	svc := newRegisterService(repo, &publisherStub{})

	cents, err := svc.Withdraw(context.Background(), testAccountID, domain.WithdrawRequest{Amount: 250.50, PhoneNumber: "0712345678"})
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if cents != 25050 {
		t.Fatalf("expected 25050 cents, got %d", cents)
	}
	if repo.withdrawnCents != 25050 {
		t.Fatalf("expected repo debit of 25050, got %d", repo.withdrawnCents)
	}
	if repo.withdrawnPhone != "+254712345678" {
		t.Fatalf("expected canonical payout phone, got %q", repo.withdrawnPhone)
	}
}

func TestWithdraw_InsufficientBalancePropagates(t *testing.T) {
	repo := &registerRepoStubFull{withdrawErr: store.ErrInsufficientBalance}
	svc := newRegisterService(repo, &publisherStub{})

	_, err := svc.Withdraw(context.Background(), testAccountID, domain.WithdrawRequest{Amount: 10, PhoneNumber: "0712345678"})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
