/**
 * @description
 * This file defines the mobile-money payment domain models. A PendingPayment is
 * the persistent record of one STK push from initiation until the provider's
 * asynchronous callback settles it.
 *
 * @notes
 * - CheckoutRequestID is the provider-issued correlation id and the unique
 *   lookup key for callbacks and status polls.
 * - A payment whose callback never arrives stays PENDING forever. That is an
 *   accepted state, not an error; the sweeper only reports such rows.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment lifecycle states. PENDING is the only non-terminal state.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
)

// PendingPayment maps to the `pending_payments` table.
type PendingPayment struct {
	ID                uuid.UUID `json:"id"`
	AccountID         uuid.UUID `json:"account_id"`
	PhoneNumber       string    `json:"phone_number"`
	AmountCents       int64     `json:"amount_cents"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	MerchantRequestID string    `json:"merchant_request_id"`
	MpesaReceipt      *string   `json:"mpesa_receipt,omitempty"`
	AccountReference  string    `json:"account_reference"`
	TransactionDesc   string    `json:"transaction_desc"`
	ResultCode        *int      `json:"result_code,omitempty"`
	ResultDesc        *string   `json:"result_desc,omitempty"`
	Status            string    `json:"status"`
	TransactionDate   *string   `json:"transaction_date,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsTerminal reports whether the payment has reached a settled state.
func (p *PendingPayment) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}

// InitiatePaymentRequest is the DTO for the payment initiation endpoint.
type InitiatePaymentRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// PaymentStatus is the DTO returned by the status poll endpoint.
type PaymentStatus struct {
	Status        string `json:"status"`
	PremiumActive bool   `json:"premiumActive"`
	Message       string `json:"message"`
}

// StkCallback is the provider payload delivered to the callback endpoint.
// CallbackMetadata is a variable-length name/value list; items are matched by
// name, never by position, and absent items are simply left unset.
type StkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []CallbackMetadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// CallbackMetadataItem is one entry of the callback metadata list. Value types
// vary by item (string receipt, numeric amount, numeric timestamp), so it is
// decoded as an untyped value and coerced by the reconciler.
type CallbackMetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// SettlementDetails are the provider facts extracted from a successful callback.
type SettlementDetails struct {
	MpesaReceipt    string
	PhoneNumber     string
	AmountCents     int64
	TransactionDate string
}
