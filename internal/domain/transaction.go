/**
 * @description
 * This file defines the ledger domain models. A Transaction is one append-only
 * entry in an account's earnings ledger; a WithdrawalRequest tracks the payout
 * side of a withdrawal entry.
 *
 * @notes
 * - Ledger entries are never mutated after creation. Balance changes are applied
 *   in the same database transaction that inserts the entry, so the ledger and
 *   the denormalized account balance cannot drift apart.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds. These mirror the five balance-affecting events the system knows.
const (
	TxTypeEarning    = "earning"
	TxTypeWithdrawal = "withdrawal"
	TxTypeBonus      = "bonus"
	TxTypeReferral   = "referral"
	TxTypePremium    = "premium"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// Transaction represents one ledger entry for an account. Maps to the
// `transactions` table, owned by (and cascade-deleted with) its account.
type Transaction struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	AmountCents  int64     `json:"amount_cents"`
	Type         string    `json:"type"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	MpesaReceipt *string   `json:"mpesa_receipt,omitempty"`
	MpesaPhone   *string   `json:"mpesa_phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Withdrawal request statuses.
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
)

// WithdrawalRequest tracks an M-Pesa payout for a withdrawal ledger entry.
type WithdrawalRequest struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	AmountCents  int64      `json:"amount_cents"`
	MpesaPhone   string     `json:"mpesa_phone"`
	Status       string     `json:"status"`
	MpesaReceipt *string    `json:"mpesa_receipt,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// WithdrawRequest is the DTO for the withdrawal endpoint. Amount is in KES.
type WithdrawRequest struct {
	Amount      float64 `json:"amount"`
	PhoneNumber string  `json:"phoneNumber"`
}
