/**
 * @description
 * Event payloads published to RabbitMQ so downstream consumers (notifications,
 * analytics) can react to account and payment activity without coupling to the
 * request path. Publishing is best-effort: a failed publish is logged, never
 * surfaced to the client.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserRegisteredEvent is published on the `survey_events` exchange with routing
// key `user.registered`.
type UserRegisteredEvent struct {
	AccountID   uuid.UUID  `json:"account_id"`
	PhoneNumber string     `json:"phone_number"`
	ReferredBy  *uuid.UUID `json:"referred_by,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// PaymentCompletedEvent is published with routing key `payment.completed` after
// a pending payment settles successfully.
type PaymentCompletedEvent struct {
	AccountID         uuid.UUID `json:"account_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	AmountCents       int64     `json:"amount_cents"`
	MpesaReceipt      string    `json:"mpesa_receipt"`
	Timestamp         time.Time `json:"timestamp"`
}

// PaymentFailedEvent is published with routing key `payment.failed`.
type PaymentFailedEvent struct {
	AccountID         uuid.UUID `json:"account_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	ResultCode        int       `json:"result_code"`
	ResultDesc        string    `json:"result_desc"`
	Timestamp         time.Time `json:"timestamp"`
}
