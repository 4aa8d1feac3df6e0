package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Frankie466/frank-quiz/internal/domain"
	"github.com/Frankie466/frank-quiz/internal/store"
	"github.com/Frankie466/frank-quiz/pkg/darajaclient"
)

type gatewayStub struct {
	resp *darajaclient.StkPushResponse
	err  error

	calledPhone    string
	calledAmount   int64
	calledCallback string
	calledRef      string
	calledDesc     string
}

func (g *gatewayStub) InitiateStkPush(ctx context.Context, phoneNumber string, amountKES int64, callbackURL, accountReference, transactionDesc string) (*darajaclient.StkPushResponse, error) {
	g.calledPhone = phoneNumber
	g.calledAmount = amountKES
	g.calledCallback = callbackURL
	g.calledRef = accountReference
	g.calledDesc = transactionDesc
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

type paymentRepoStub struct {
	store.Repository

	account *domain.Account
	payment *domain.PendingPayment

	createdPayment *domain.PendingPayment
	createErr      error
}

func (s *paymentRepoStub) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if s.account == nil || s.account.ID != id {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *paymentRepoStub) CreatePendingPayment(ctx context.Context, payment *domain.PendingPayment) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.createdPayment = payment
	return nil
}

func (s *paymentRepoStub) FindPendingPaymentByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.PendingPayment, error) {
	if s.payment == nil || s.payment.CheckoutRequestID != checkoutRequestID {
		return nil, store.ErrPaymentNotFound
	}
	return s.payment, nil
}

func acceptedPush() *darajaclient.StkPushResponse {
	return &darajaclient.StkPushResponse{
		MerchantRequestID:   "merch-1",
		CheckoutRequestID:   "ws_CO_123",
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}
}

func TestInitiatePremiumPayment(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{account: &domain.Account{ID: accountID, PhoneNumber: "+254712345678"}}
	gateway := &gatewayStub{resp: acceptedPush()}
	svc := NewService(repo, gateway, &publisherStub{}, nil, "https://example.com/callback/tok", 100, 5)

	payment, msg, err := svc.InitiatePremiumPayment(context.Background(), accountID, domain.InitiatePaymentRequest{})
	if err != nil {
		t.Fatalf("InitiatePremiumPayment returned error: %v", err)
	}
	if gateway.calledPhone != "254712345678" {
		t.Fatalf("expected provider-form phone, got %q", gateway.calledPhone)
	}
	if gateway.calledAmount != 100 {
		t.Fatalf("expected amount 100 KES, got %d", gateway.calledAmount)
	}
	if gateway.calledCallback != "https://example.com/callback/tok" {
		t.Fatalf("unexpected callback URL %q", gateway.calledCallback)
	}
	if payment.CheckoutRequestID != "ws_CO_123" {
		t.Fatalf("expected checkout id from provider, got %q", payment.CheckoutRequestID)
	}
	if payment.MerchantRequestID != "merch-1" {
		t.Fatalf("expected merchant request id from provider, got %q", payment.MerchantRequestID)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("new payment must be PENDING, got %q", payment.Status)
	}
	if payment.AmountCents != 10000 {
		t.Fatalf("expected 10000 cents, got %d", payment.AmountCents)
	}
	if repo.createdPayment == nil {
		t.Fatalf("pending payment was not persisted")
	}
	if msg == "" {
		t.Fatalf("expected customer message")
	}
}

func TestInitiatePremiumPayment_ExplicitPayerPhone(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{account: &domain.Account{ID: accountID, PhoneNumber: "+254712345678"}}
	gateway := &gatewayStub{resp: acceptedPush()}
	svc := NewService(repo, gateway, &publisherStub{}, nil, "https://example.com/cb", 100, 5)

	_, _, err := svc.InitiatePremiumPayment(context.Background(), accountID, domain.InitiatePaymentRequest{PhoneNumber: "0110345678"})
	if err != nil {
		t.Fatalf("InitiatePremiumPayment returned error: %v", err)
	}
	if gateway.calledPhone != "254110345678" {
		t.Fatalf("expected payer override in provider form, got %q", gateway.calledPhone)
	}
}

func TestInitiatePremiumPayment_AlreadyPremium(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{account: &domain.Account{ID: accountID, PhoneNumber: "+254712345678", IsPremium: true}}
	gateway := &gatewayStub{resp: acceptedPush()}
	svc := NewService(repo, gateway, &publisherStub{}, nil, "https://example.com/cb", 100, 5)

	_, _, err := svc.InitiatePremiumPayment(context.Background(), accountID, domain.InitiatePaymentRequest{})
	if !errors.Is(err, store.ErrAlreadyPremium) {
		t.Fatalf("expected ErrAlreadyPremium, got %v", err)
	}
	if gateway.calledPhone != "" {
		t.Fatalf("gateway must not be called for a premium account")
	}
}

func TestInitiatePremiumPayment_GatewayFailureLeavesNoRow(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{account: &domain.Account{ID: accountID, PhoneNumber: "+254712345678"}}
	gateway := &gatewayStub{err: darajaclient.ErrUnavailable}
	svc := NewService(repo, gateway, &publisherStub{}, nil, "https://example.com/cb", 100, 5)

	_, _, err := svc.InitiatePremiumPayment(context.Background(), accountID, domain.InitiatePaymentRequest{})
	if !errors.Is(err, darajaclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if repo.createdPayment != nil {
		t.Fatalf("no pending row may be created when the push was not accepted")
	}
}

func TestInitiatePremiumPayment_RateLimited(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{account: &domain.Account{ID: accountID, PhoneNumber: "+254712345678"}}
	gateway := &gatewayStub{resp: acceptedPush()}
	limiter := &limiterStub{count: 6, retryAfter: 42}
	svc := NewService(repo, gateway, &publisherStub{}, limiter, "https://example.com/cb", 100, 5)

	_, _, err := svc.InitiatePremiumPayment(context.Background(), accountID, domain.InitiatePaymentRequest{})
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry after 42s, got %d", limited.RetryAfterSeconds)
	}
	if gateway.calledPhone != "" {
		t.Fatalf("gateway must not be called when rate limited")
	}
}

func TestInitiatePremiumPayment_LimiterOutageDoesNotBlock(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{account: &domain.Account{ID: accountID, PhoneNumber: "+254712345678"}}
	gateway := &gatewayStub{resp: acceptedPush()}
	limiter := &limiterStub{err: errors.New("redis down")}
	svc := NewService(repo, gateway, &publisherStub{}, limiter, "https://example.com/cb", 100, 5)

	_, _, err := svc.InitiatePremiumPayment(context.Background(), accountID, domain.InitiatePaymentRequest{})
	if err != nil {
		t.Fatalf("limiter outage must not block payments, got %v", err)
	}
}

func TestCheckPaymentStatus_PremiumFlagIsAuthoritative(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{
		account: &domain.Account{ID: accountID, IsPremium: true},
		// Row still PENDING: the poll raced the callback.
		payment: &domain.PendingPayment{AccountID: accountID, CheckoutRequestID: "ws_CO_123", Status: domain.PaymentStatusPending},
	}
	svc := NewService(repo, nil, &publisherStub{}, nil, "https://example.com/cb", 100, 5)

	status, err := svc.CheckPaymentStatus(context.Background(), accountID, "ws_CO_123")
	if err != nil {
		t.Fatalf("CheckPaymentStatus returned error: %v", err)
	}
	if status.Status != domain.PaymentStatusCompleted || !status.PremiumActive {
		t.Fatalf("premium flag must win over the row, got %+v", status)
	}
}

func TestCheckPaymentStatus_Pending(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{
		account: &domain.Account{ID: accountID},
		payment: &domain.PendingPayment{AccountID: accountID, CheckoutRequestID: "ws_CO_123", Status: domain.PaymentStatusPending},
	}
	svc := NewService(repo, nil, &publisherStub{}, nil, "https://example.com/cb", 100, 5)

	status, err := svc.CheckPaymentStatus(context.Background(), accountID, "ws_CO_123")
	if err != nil {
		t.Fatalf("CheckPaymentStatus returned error: %v", err)
	}
	if status.Status != domain.PaymentStatusPending || status.PremiumActive {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestCheckPaymentStatus_FailedUsesMessageTable(t *testing.T) {
	accountID := uuid.New()
	code := 1
	desc := "The balance is insufficient for the transaction"
	repo := &paymentRepoStub{
		account: &domain.Account{ID: accountID},
		payment: &domain.PendingPayment{
			AccountID:         accountID,
			CheckoutRequestID: "ws_CO_123",
			Status:            domain.PaymentStatusFailed,
			ResultCode:        &code,
			ResultDesc:        &desc,
		},
	}
	svc := NewService(repo, nil, &publisherStub{}, nil, "https://example.com/cb", 100, 5)

	status, err := svc.CheckPaymentStatus(context.Background(), accountID, "ws_CO_123")
	if err != nil {
		t.Fatalf("CheckPaymentStatus returned error: %v", err)
	}
	if status.Message != "Insufficient M-Pesa balance" {
		t.Fatalf("expected mapped message, got %q", status.Message)
	}
}

func TestCheckPaymentStatus_OtherAccountsPaymentHidden(t *testing.T) {
	accountID := uuid.New()
	repo := &paymentRepoStub{
		account: &domain.Account{ID: accountID},
		payment: &domain.PendingPayment{AccountID: uuid.New(), CheckoutRequestID: "ws_CO_123", Status: domain.PaymentStatusPending},
	}
	svc := NewService(repo, nil, &publisherStub{}, nil, "https://example.com/cb", 100, 5)

	_, err := svc.CheckPaymentStatus(context.Background(), accountID, "ws_CO_123")
	if !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound for another account's payment, got %v", err)
	}
}
