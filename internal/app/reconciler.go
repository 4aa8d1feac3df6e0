/**
 * @description
 * This file contains the callback reconciliation logic for STK push payments.
 * The provider delivers at-least-once, so every path here must be idempotent:
 * a duplicate callback for a settled payment is logged and absorbed, and an
 * unknown CheckoutRequestID is acknowledged without side effects so the
 * provider stops retrying.
 *
 * Entitlement rules:
 * - The premium flag is the single guard for granting the entitlement; the
 *   repository's ActivatePremium row lock makes a double grant impossible.
 * - The referrer's bonus is credited at most once because it only runs on the
 *   one ActivatePremium call that succeeds.
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
	"github.com/Frankie466/frank-quiz/internal/store"
)

// HandleStkCallback reconciles one provider callback against the pending
// payment it references. A nil return means the callback was absorbed; the
// HTTP layer acknowledges the provider either way.
func (s *Service) HandleStkCallback(ctx context.Context, cb domain.StkCallback) error {
	data := cb.Body.StkCallback
	if data.CheckoutRequestID == "" {
		log.Printf("level=warn component=reconciler msg=\"callback missing CheckoutRequestID; ignoring\"")
		return nil
	}

	payment, err := s.repo.FindPendingPaymentByCheckoutID(ctx, data.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			// Unknown id: acknowledge so the provider does not retry forever.
			log.Printf("level=warn component=reconciler checkout_request_id=%s msg=\"callback for unknown payment; acknowledged\"", data.CheckoutRequestID)
			return nil
		}
		return fmt.Errorf("failed to load pending payment: %w", err)
	}

	if payment.IsTerminal() {
		log.Printf("level=info component=reconciler checkout_request_id=%s status=%s msg=\"duplicate callback for settled payment; ignored\"", data.CheckoutRequestID, payment.Status)
		return nil
	}

	if data.ResultCode == 0 {
		return s.settleSuccess(ctx, payment, cb)
	}
	return s.settleFailure(ctx, payment, data.ResultCode, data.ResultDesc)
}

func (s *Service) settleSuccess(ctx context.Context, payment *domain.PendingPayment, cb domain.StkCallback) error {
	data := cb.Body.StkCallback
	details := extractSettlementDetails(data.CallbackMetadata.Item)

	err := s.repo.CompletePendingPayment(ctx, data.CheckoutRequestID, details, data.ResultCode, data.ResultDesc)
	if err != nil {
		if errors.Is(err, store.ErrPaymentAlreadySettled) {
			// Lost the race against a duplicate delivery; the winner granted
			// the entitlement.
			log.Printf("level=info component=reconciler checkout_request_id=%s msg=\"payment settled concurrently; ignored\"", data.CheckoutRequestID)
			return nil
		}
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=reconciler checkout_request_id=%s msg=\"payment vanished during settlement; acknowledged\"", data.CheckoutRequestID)
			return nil
		}
		return fmt.Errorf("failed to complete payment: %w", err)
	}

	if err := s.repo.ActivatePremium(ctx, payment.AccountID, PremiumBonus); err != nil {
		if errors.Is(err, store.ErrAlreadyPremium) {
			log.Printf("level=info component=reconciler account_id=%s msg=\"premium already active; entitlement not granted twice\"", payment.AccountID)
			return nil
		}
		// The money arrived but the grant failed. Surface it loudly; the row
		// stays COMPLETED and support can re-run the grant.
		log.Printf("level=error component=reconciler account_id=%s checkout_request_id=%s msg=\"payment completed but premium grant failed\" err=%v", payment.AccountID, data.CheckoutRequestID, err)
		return fmt.Errorf("failed to activate premium: %w", err)
	}

	s.creditReferrer(ctx, payment.AccountID)

	if pubErr := s.eventProducer.Publish(ctx, EventsExchange, "payment.completed", domain.PaymentCompletedEvent{
		AccountID:         payment.AccountID,
		CheckoutRequestID: data.CheckoutRequestID,
		AmountCents:       payment.AmountCents,
		MpesaReceipt:      details.MpesaReceipt,
		Timestamp:         time.Now().UTC(),
	}); pubErr != nil {
		log.Printf("level=warn component=reconciler checkout_request_id=%s msg=\"event publish failed\" err=%v", data.CheckoutRequestID, pubErr)
	}

	log.Printf("level=info component=reconciler account_id=%s checkout_request_id=%s receipt=%s msg=\"payment completed and premium granted\"", payment.AccountID, data.CheckoutRequestID, details.MpesaReceipt)
	return nil
}

func (s *Service) settleFailure(ctx context.Context, payment *domain.PendingPayment, resultCode int, resultDesc string) error {
	err := s.repo.FailPendingPayment(ctx, payment.CheckoutRequestID, resultCode, resultDesc)
	if err != nil {
		if errors.Is(err, store.ErrPaymentAlreadySettled) || errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=info component=reconciler checkout_request_id=%s msg=\"failure callback for settled payment; ignored\"", payment.CheckoutRequestID)
			return nil
		}
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	if pubErr := s.eventProducer.Publish(ctx, EventsExchange, "payment.failed", domain.PaymentFailedEvent{
		AccountID:         payment.AccountID,
		CheckoutRequestID: payment.CheckoutRequestID,
		ResultCode:        resultCode,
		ResultDesc:        resultDesc,
		Timestamp:         time.Now().UTC(),
	}); pubErr != nil {
		log.Printf("level=warn component=reconciler checkout_request_id=%s msg=\"event publish failed\" err=%v", payment.CheckoutRequestID, pubErr)
	}

	log.Printf("level=info component=reconciler account_id=%s checkout_request_id=%s result_code=%d msg=\"payment marked failed\"", payment.AccountID, payment.CheckoutRequestID, resultCode)
	return nil
}

func (s *Service) creditReferrer(ctx context.Context, accountID uuid.UUID) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		log.Printf("level=warn component=reconciler account_id=%s msg=\"could not load account for referral credit\" err=%v", accountID, err)
		return
	}
	if account.ReferredBy == nil {
		return
	}
	description := "Referral bonus: " + account.DisplayName() + " went premium"
	if err := s.repo.AddReferralBonus(ctx, *account.ReferredBy, ReferralBonus, description); err != nil {
		log.Printf("level=error component=reconciler referrer_id=%s msg=\"failed to credit referral bonus\" err=%v", account.ReferredBy, err)
		return
	}
	log.Printf("level=info component=reconciler referrer_id=%s amount_cents=%d msg=\"referral bonus credited\"", account.ReferredBy, ReferralBonus)
}

// extractSettlementDetails pulls the provider facts out of the callback
// metadata list. Items are matched by name; value types vary per item so each
// is coerced defensively and absent items simply stay zero.
func extractSettlementDetails(items []domain.CallbackMetadataItem) domain.SettlementDetails {
	var details domain.SettlementDetails
	for _, item := range items {
		switch item.Name {
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				details.MpesaReceipt = v
			}
		case "PhoneNumber":
			details.PhoneNumber = coerceString(item.Value)
		case "Amount":
			switch v := item.Value.(type) {
			case float64:
				details.AmountCents = int64(v * 100)
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					details.AmountCents = int64(f * 100)
				}
			}
		case "TransactionDate":
			details.TransactionDate = coerceString(item.Value)
		}
	}
	return details
}

func coerceString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	default:
		return ""
	}
}
