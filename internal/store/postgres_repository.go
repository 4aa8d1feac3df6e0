/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for accounts, the earnings ledger, pending
 * M-Pesa payments, and survey assignments.
 *
 * Invariants enforced here rather than in the application layer:
 *   - every ledger append and its balance mutation happen in one transaction,
 *     serialized per account through `SELECT ... FOR UPDATE` row locks;
 *   - a checkout request id maps to at most one pending payment row (unique
 *     constraint, surfaced as ErrDuplicateCheckoutRequest);
 *   - a pending payment transitions out of PENDING at most once (conditional
 *     UPDATE guarded on the current status).
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Frankie466/frank-quiz/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, phone_number, pin_hash, balance, total_earned, is_premium,
	premium_activated_at, referral_code, referred_by, referral_bonus, surveys_completed,
	last_login_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.PhoneNumber, &a.PINHash, &a.BalanceCents, &a.TotalEarnedCents,
		&a.IsPremium, &a.PremiumActivatedAt, &a.ReferralCode, &a.ReferredBy,
		&a.ReferralBonusCents, &a.SurveysCompleted, &a.LastLoginAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account row and credits the welcome bonus, both
// in one transaction, so an account never exists without its opening ledger
// entry. The phone number must already be in canonical form; uniqueness
// violations are mapped to the matching sentinel.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account, welcomeBonusCents int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO accounts (
			id, phone_number, pin_hash, balance, total_earned, is_premium,
			referral_code, referred_by, referral_bonus, surveys_completed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		account.ID,
		account.PhoneNumber,
		account.PINHash,
		welcomeBonusCents,
		account.TotalEarnedCents,
		account.IsPremium,
		account.ReferralCode,
		account.ReferredBy,
		account.ReferralBonusCents,
		account.SurveysCompleted,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "referral_code") {
				return ErrDuplicateReferralCode
			}
			return ErrDuplicatePhone
		}
		return err
	}

	if welcomeBonusCents > 0 {
		if err := insertTransaction(ctx, tx, account.ID, welcomeBonusCents, domain.TxTypeBonus, "Welcome Bonus", nil, nil); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	account.BalanceCents = welcomeBonusCents
	return nil
}

// FindAccountByPhone retrieves an account by its canonical phone identity key.
func (r *PostgresRepository) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE phone_number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, phone))
}

// FindAccountByID retrieves an account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

// FindAccountByReferralCode retrieves an account by its referral code.
func (r *PostgresRepository) FindAccountByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE referral_code = $1`
	return scanAccount(r.db.QueryRow(ctx, query, code))
}

// TouchLastLogin records a successful authentication.
func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordEarning appends an earning ledger entry and credits balance and
// total_earned in the same transaction.
func (r *PostgresRepository) RecordEarning(ctx context.Context, accountID uuid.UUID, amountCents int64, description string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $1, total_earned = total_earned + $1, updated_at = NOW()
		WHERE id = $2
	`, amountCents, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	if err := insertTransaction(ctx, tx, accountID, amountCents, domain.TxTypeEarning, description, nil, nil); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordBonus appends a bonus ledger entry and credits the balance.
func (r *PostgresRepository) RecordBonus(ctx context.Context, accountID uuid.UUID, amountCents int64, description string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2
	`, amountCents, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	if err := insertTransaction(ctx, tx, accountID, amountCents, domain.TxTypeBonus, description, nil, nil); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Withdraw debits the balance, appends the withdrawal ledger entry, and opens a
// withdrawal request row, all atomically. The balance check and the debit are
// serialized through a row lock so a concurrent withdrawal cannot overdraw.
func (r *PostgresRepository) Withdraw(ctx context.Context, accountID uuid.UUID, amountCents int64, mpesaPhone string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balance int64
	// Use FOR UPDATE to lock the row, preventing race conditions.
	err = tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrAccountNotFound
		}
		return err
	}

	if balance < amountCents {
		return ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2
	`, amountCents, accountID); err != nil {
		return err
	}

	if err := insertTransaction(ctx, tx, accountID, amountCents, domain.TxTypeWithdrawal, "M-Pesa Withdrawal", nil, &mpesaPhone); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO withdrawal_requests (id, account_id, amount, mpesa_phone, status)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), accountID, amountCents, mpesaPhone, domain.WithdrawalStatusPending); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListTransactions retrieves the most recent ledger entries for an account.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, account_id, amount, type, description, status, mpesa_receipt, mpesa_phone, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		err := rows.Scan(
			&t.ID, &t.AccountID, &t.AmountCents, &t.Type, &t.Description,
			&t.Status, &t.MpesaReceipt, &t.MpesaPhone, &t.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, nil
}

// ActivatePremium grants the premium entitlement: sets the flag and activation
// timestamp, credits the fixed bonus, and appends the bonus entry plus the
// zero-amount activation marker, all in one transaction. The row lock makes two
// racing grants impossible; the loser sees ErrAlreadyPremium.
func (r *PostgresRepository) ActivatePremium(ctx context.Context, accountID uuid.UUID, bonusCents int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var isPremium bool
	err = tx.QueryRow(ctx, `SELECT is_premium FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&isPremium)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrAccountNotFound
		}
		return err
	}
	if isPremium {
		return ErrAlreadyPremium
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts
		SET is_premium = TRUE, premium_activated_at = NOW(), balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`, bonusCents, accountID); err != nil {
		return err
	}

	if err := insertTransaction(ctx, tx, accountID, bonusCents, domain.TxTypeBonus, "Premium Activation Bonus", nil, nil); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, accountID, 0, domain.TxTypePremium, "Premium Membership Activation", nil, nil); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AddReferralBonus credits a referrer and appends the referral ledger entry.
func (r *PostgresRepository) AddReferralBonus(ctx context.Context, accountID uuid.UUID, amountCents int64, description string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $1, referral_bonus = referral_bonus + $1, updated_at = NOW()
		WHERE id = $2
	`, amountCents, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	if err := insertTransaction(ctx, tx, accountID, amountCents, domain.TxTypeReferral, description, nil, nil); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreatePendingPayment inserts a PENDING payment row keyed by the provider's
// checkout request id.
func (r *PostgresRepository) CreatePendingPayment(ctx context.Context, payment *domain.PendingPayment) error {
	query := `
		INSERT INTO pending_payments (
			id, account_id, phone_number, amount, checkout_request_id,
			merchant_request_id, account_reference, transaction_desc, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		payment.ID,
		payment.AccountID,
		payment.PhoneNumber,
		payment.AmountCents,
		payment.CheckoutRequestID,
		payment.MerchantRequestID,
		payment.AccountReference,
		payment.TransactionDesc,
		payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCheckoutRequest
		}
		return err
	}
	return nil
}

// FindPendingPaymentByCheckoutID retrieves a payment by its correlation id.
func (r *PostgresRepository) FindPendingPaymentByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.PendingPayment, error) {
	query := `
		SELECT id, account_id, phone_number, amount, checkout_request_id, merchant_request_id,
		       mpesa_receipt, account_reference, transaction_desc, result_code, result_desc,
		       status, transaction_date, created_at, updated_at
		FROM pending_payments
		WHERE checkout_request_id = $1
	`
	var p domain.PendingPayment
	err := r.db.QueryRow(ctx, query, checkoutRequestID).Scan(
		&p.ID, &p.AccountID, &p.PhoneNumber, &p.AmountCents, &p.CheckoutRequestID,
		&p.MerchantRequestID, &p.MpesaReceipt, &p.AccountReference, &p.TransactionDesc,
		&p.ResultCode, &p.ResultDesc, &p.Status, &p.TransactionDate,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CompletePendingPayment moves a payment to COMPLETED and appends the premium
// payment ledger entry carrying the provider receipt. The UPDATE is guarded on
// the current status, so replaying a callback for an already settled payment
// affects zero rows and reports ErrPaymentAlreadySettled instead of mutating.
func (r *PostgresRepository) CompletePendingPayment(ctx context.Context, checkoutRequestID string, details domain.SettlementDetails, resultCode int, resultDesc string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var accountID uuid.UUID
	var amountCents int64
	err = tx.QueryRow(ctx, `
		UPDATE pending_payments
		SET status = $2,
		    result_code = $3,
		    result_desc = $4,
		    mpesa_receipt = NULLIF($5, ''),
		    transaction_date = NULLIF($6, ''),
		    updated_at = NOW()
		WHERE checkout_request_id = $1 AND status = $7
		RETURNING account_id, amount
	`, checkoutRequestID, domain.PaymentStatusCompleted, resultCode, resultDesc,
		details.MpesaReceipt, details.TransactionDate, domain.PaymentStatusPending,
	).Scan(&accountID, &amountCents)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r.classifySettlementMiss(ctx, checkoutRequestID)
		}
		return err
	}

	receipt := details.MpesaReceipt
	if receipt == "" {
		receipt = "N/A"
	}
	var receiptPtr *string
	if details.MpesaReceipt != "" {
		receiptPtr = &details.MpesaReceipt
	}
	var phonePtr *string
	if details.PhoneNumber != "" {
		phonePtr = &details.PhoneNumber
	}
	description := "Premium Activation Payment - M-Pesa Receipt: " + receipt
	if err := insertTransaction(ctx, tx, accountID, amountCents, domain.TxTypePremium, description, receiptPtr, phonePtr); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FailPendingPayment moves a payment to FAILED, or to CANCELLED when the
// provider reports the user dismissed the prompt (result code 1032).
// Idempotent under duplicate callbacks via the same status-guarded UPDATE as
// CompletePendingPayment.
func (r *PostgresRepository) FailPendingPayment(ctx context.Context, checkoutRequestID string, resultCode int, resultDesc string) error {
	status := domain.PaymentStatusFailed
	if resultCode == 1032 {
		status = domain.PaymentStatusCancelled
	}
	result, err := r.db.Exec(ctx, `
		UPDATE pending_payments
		SET status = $2, result_code = $3, result_desc = $4, updated_at = NOW()
		WHERE checkout_request_id = $1 AND status = $5
	`, checkoutRequestID, status, resultCode, resultDesc, domain.PaymentStatusPending)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return r.classifySettlementMiss(ctx, checkoutRequestID)
	}
	return nil
}

// classifySettlementMiss distinguishes "no such payment" from "already settled"
// after a status-guarded UPDATE touched zero rows.
func (r *PostgresRepository) classifySettlementMiss(ctx context.Context, checkoutRequestID string) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM pending_payments WHERE checkout_request_id = $1`, checkoutRequestID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrPaymentNotFound
		}
		return err
	}
	return ErrPaymentAlreadySettled
}

// ListStalePendingPayments returns payments still PENDING past the cutoff.
// Read-only: the sweeper reports these rows, it never settles them.
func (r *PostgresRepository) ListStalePendingPayments(ctx context.Context, olderThan time.Time) ([]domain.PendingPayment, error) {
	query := `
		SELECT id, account_id, phone_number, amount, checkout_request_id, merchant_request_id,
		       mpesa_receipt, account_reference, transaction_desc, result_code, result_desc,
		       status, transaction_date, created_at, updated_at
		FROM pending_payments
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, domain.PaymentStatusPending, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.PendingPayment
	for rows.Next() {
		var p domain.PendingPayment
		err := rows.Scan(
			&p.ID, &p.AccountID, &p.PhoneNumber, &p.AmountCents, &p.CheckoutRequestID,
			&p.MerchantRequestID, &p.MpesaReceipt, &p.AccountReference, &p.TransactionDesc,
			&p.ResultCode, &p.ResultDesc, &p.Status, &p.TransactionDate,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// ListAvailableSurveys returns active surveys the account has not started or
// completed yet.
func (r *PostgresRepository) ListAvailableSurveys(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Survey, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `
		SELECT s.id, s.title, s.description, s.reward, s.estimated_time, s.category,
		       s.difficulty, s.is_active, s.is_premium_only, s.questions_count, s.created_at
		FROM surveys s
		WHERE s.is_active = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM survey_assignments a
			WHERE a.survey_id = s.id
			  AND a.account_id = $1
			  AND a.status IN ($2, $3)
		  )
		ORDER BY s.created_at DESC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, accountID,
		domain.AssignmentStatusStarted, domain.AssignmentStatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var surveys []domain.Survey
	for rows.Next() {
		var s domain.Survey
		err := rows.Scan(
			&s.ID, &s.Title, &s.Description, &s.RewardCents, &s.EstimatedTime,
			&s.Category, &s.Difficulty, &s.IsActive, &s.IsPremiumOnly,
			&s.QuestionsCount, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		surveys = append(surveys, s)
	}
	return surveys, nil
}

// FindSurveyByID retrieves one catalog row.
func (r *PostgresRepository) FindSurveyByID(ctx context.Context, surveyID uuid.UUID) (*domain.Survey, error) {
	query := `
		SELECT id, title, description, reward, estimated_time, category,
		       difficulty, is_active, is_premium_only, questions_count, created_at
		FROM surveys
		WHERE id = $1
	`
	var s domain.Survey
	err := r.db.QueryRow(ctx, query, surveyID).Scan(
		&s.ID, &s.Title, &s.Description, &s.RewardCents, &s.EstimatedTime,
		&s.Category, &s.Difficulty, &s.IsActive, &s.IsPremiumOnly,
		&s.QuestionsCount, &s.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSurveyNotFound
		}
		return nil, err
	}
	return &s, nil
}

// StartSurvey opens (or re-opens) an assignment for the account. A completed
// assignment can never be restarted.
func (r *PostgresRepository) StartSurvey(ctx context.Context, accountID, surveyID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var isActive bool
	err = tx.QueryRow(ctx, `SELECT is_active FROM surveys WHERE id = $1`, surveyID).Scan(&isActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrSurveyNotFound
		}
		return err
	}
	if !isActive {
		return ErrSurveyNotAvailable
	}

	var status string
	err = tx.QueryRow(ctx, `
		SELECT status FROM survey_assignments
		WHERE account_id = $1 AND survey_id = $2
		FOR UPDATE
	`, accountID, surveyID).Scan(&status)
	switch {
	case err == pgx.ErrNoRows:
		if _, err := tx.Exec(ctx, `
			INSERT INTO survey_assignments (id, account_id, survey_id, status, started_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, uuid.New(), accountID, surveyID, domain.AssignmentStatusStarted); err != nil {
			return err
		}
	case err != nil:
		return err
	case status == domain.AssignmentStatusCompleted:
		return ErrSurveyAlreadyCompleted
	default:
		if _, err := tx.Exec(ctx, `
			UPDATE survey_assignments
			SET status = $3, started_at = NOW()
			WHERE account_id = $1 AND survey_id = $2
		`, accountID, surveyID, domain.AssignmentStatusStarted); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// CompleteSurvey settles a started assignment: marks it completed, credits the
// reward to balance and total_earned, bumps the completion counter, and appends
// the earning ledger entry, all in one transaction. Returns the reward amount.
func (r *PostgresRepository) CompleteSurvey(ctx context.Context, accountID, surveyID uuid.UUID) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var status, title string
	var rewardCents int64
	err = tx.QueryRow(ctx, `
		SELECT a.status, s.reward, s.title
		FROM survey_assignments a
		JOIN surveys s ON s.id = a.survey_id
		WHERE a.account_id = $1 AND a.survey_id = $2
		FOR UPDATE OF a
	`, accountID, surveyID).Scan(&status, &rewardCents, &title)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrSurveyNotAvailable
		}
		return 0, err
	}
	if status == domain.AssignmentStatusCompleted {
		return 0, ErrSurveyAlreadyCompleted
	}
	if status != domain.AssignmentStatusStarted {
		return 0, ErrSurveyNotAvailable
	}

	if _, err := tx.Exec(ctx, `
		UPDATE survey_assignments
		SET status = $3, completed_at = NOW(), earnings = $4
		WHERE account_id = $1 AND survey_id = $2
	`, accountID, surveyID, domain.AssignmentStatusCompleted, rewardCents); err != nil {
		return 0, err
	}

	result, err := tx.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $1,
		    total_earned = total_earned + $1,
		    surveys_completed = surveys_completed + 1,
		    updated_at = NOW()
		WHERE id = $2
	`, rewardCents, accountID)
	if err != nil {
		return 0, err
	}
	if result.RowsAffected() == 0 {
		return 0, ErrAccountNotFound
	}

	if err := insertTransaction(ctx, tx, accountID, rewardCents, domain.TxTypeEarning, "Survey completion: "+title, nil, nil); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return rewardCents, nil
}

// SeedSurveys inserts catalog rows, skipping titles that already exist.
func (r *PostgresRepository) SeedSurveys(ctx context.Context, surveys []domain.Survey) error {
	for _, s := range surveys {
		id := s.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := r.db.Exec(ctx, `
			INSERT INTO surveys (
				id, title, description, reward, estimated_time, category,
				difficulty, is_active, is_premium_only, questions_count
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (title) DO NOTHING
		`, id, s.Title, s.Description, s.RewardCents, s.EstimatedTime,
			s.Category, s.Difficulty, s.IsActive, s.IsPremiumOnly, s.QuestionsCount)
		if err != nil {
			return err
		}
	}
	return nil
}

// insertTransaction appends one ledger row inside the caller's transaction.
func insertTransaction(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amountCents int64, txType, description string, receipt, phone *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, account_id, amount, type, description, status, mpesa_receipt, mpesa_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New(), accountID, amountCents, txType, description, domain.TxStatusCompleted, receipt, phone)
	return err
}
