/**
 * @description
 * This file contains the payment initiation and status-poll logic. Initiation
 * is fail-fast: nothing is persisted unless the provider accepts the push, so
 * a gateway outage leaves no orphaned PENDING rows. The status poll treats the
 * account's premium flag as authoritative, which keeps the answer correct even
 * if a poll races the callback.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Frankie466/frank-quiz/internal/domain"
	"github.com/Frankie466/frank-quiz/internal/phone"
	"github.com/Frankie466/frank-quiz/internal/store"
	"github.com/Frankie466/frank-quiz/pkg/darajaclient"
)

// RateLimiter is the distributed limiter contract. A nil limiter disables
// limiting, matching the Redis implementation's nil-receiver behavior.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimitedError is returned when payment initiation exceeds the per-phone
// limit. RetryAfterSeconds feeds the Retry-After response header.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many payment attempts, retry after %ds", e.RetryAfterSeconds)
}

// InitiatePremiumPayment sends an STK push for the premium upgrade price and
// records the resulting PENDING payment. The returned string is the customer
// message the provider wants shown to the payer.
func (s *Service) InitiatePremiumPayment(ctx context.Context, accountID uuid.UUID, req domain.InitiatePaymentRequest) (*domain.PendingPayment, string, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	if account.IsPremium {
		return nil, "", store.ErrAlreadyPremium
	}

	payerPhone := req.PhoneNumber
	if payerPhone == "" {
		payerPhone = account.PhoneNumber
	}
	canonical, err := phone.Normalize(payerPhone)
	if err != nil {
		return nil, "", err
	}
	providerPhone, err := phone.FormatForProvider(canonical)
	if err != nil {
		return nil, "", err
	}

	if s.rateLimiter != nil && s.rateLimitPerMinute > 0 {
		count, retryAfter, limErr := s.rateLimiter.ConsumeRateLimit(ctx, "stk_push", canonical, s.rateLimitPerMinute, time.Minute)
		if limErr != nil {
			// A limiter outage must not block payments; log and continue.
			log.Printf("level=warn component=payments op=initiate msg=\"rate limiter unavailable\" err=%v", limErr)
		} else if count > s.rateLimitPerMinute {
			return nil, "", &RateLimitedError{RetryAfterSeconds: retryAfter}
		}
	}

	reference := "SV" + shortRef(accountID)
	resp, err := s.gateway.InitiateStkPush(ctx, providerPhone, s.premiumPriceKES, s.callbackURL, reference, "Premium Upgrade")
	if err != nil {
		// Fail fast: no pending row is created when the provider did not
		// accept the push, so there is nothing to reconcile later.
		log.Printf("level=warn component=payments op=initiate account_id=%s msg=\"stk push not accepted\" err=%v", accountID, err)
		return nil, "", err
	}

	payment := &domain.PendingPayment{
		ID:                uuid.New(),
		AccountID:         accountID,
		PhoneNumber:       canonical,
		AmountCents:       s.premiumPriceKES * 100,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		AccountReference:  reference,
		TransactionDesc:   "Premium Upgrade",
		Status:            domain.PaymentStatusPending,
	}
	if err := s.repo.CreatePendingPayment(ctx, payment); err != nil {
		log.Printf("level=error component=payments op=initiate account_id=%s checkout_request_id=%s msg=\"failed to persist pending payment\" err=%v", accountID, resp.CheckoutRequestID, err)
		return nil, "", fmt.Errorf("failed to persist pending payment: %w", err)
	}

	log.Printf("level=info component=payments op=initiate account_id=%s checkout_request_id=%s amount_kes=%d msg=\"stk push sent\"", accountID, resp.CheckoutRequestID, s.premiumPriceKES)
	return payment, resp.CustomerMessage, nil
}

// CheckPaymentStatus reports the state of a payment to the polling client.
// The premium flag wins over the payment row: once the account is premium the
// answer is COMPLETED regardless of what the row says.
func (s *Service) CheckPaymentStatus(ctx context.Context, accountID uuid.UUID, checkoutRequestID string) (*domain.PaymentStatus, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.IsPremium {
		return &domain.PaymentStatus{
			Status:        domain.PaymentStatusCompleted,
			PremiumActive: true,
			Message:       "Premium membership is active",
		}, nil
	}

	payment, err := s.repo.FindPendingPaymentByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if payment.AccountID != accountID {
		// Do not reveal that the id exists for another account.
		return nil, store.ErrPaymentNotFound
	}

	status := &domain.PaymentStatus{Status: payment.Status}
	switch payment.Status {
	case domain.PaymentStatusPending:
		status.Message = "Waiting for payment confirmation"
	case domain.PaymentStatusCompleted:
		status.PremiumActive = account.IsPremium
		status.Message = "Payment received"
	default:
		code := ""
		if payment.ResultCode != nil {
			code = strconv.Itoa(*payment.ResultCode)
		}
		desc := ""
		if payment.ResultDesc != nil {
			desc = *payment.ResultDesc
		}
		status.Message = darajaclient.MessageForCode(code, desc)
	}
	return status, nil
}

// IsGatewayRejection reports whether err is a provider-side rejection whose
// message is safe to show the end user.
func IsGatewayRejection(err error) (string, bool) {
	var rejected *darajaclient.RejectedError
	if errors.As(err, &rejected) {
		return darajaclient.MessageForCode(rejected.Code, rejected.Message), true
	}
	return "", false
}

func shortRef(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}
