/**
 * @description
 * This file contains the HTTP handlers for the service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. Every application response uses the {success, message} envelope;
 * validation and business failures are recovered here and never leak internal
 * detail to the client.
 *
 * The STK callback handler is the exception to normal error semantics: the
 * provider contract requires a success acknowledgement for every processable
 * request, so reconciliation problems are swallowed into {"ResultCode": 0}
 * and only visible in the logs. Malformed JSON (400) and unhandled server
 * errors (500) are the only non-acknowledging responses.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Frankie466/frank-quiz/internal/app"
	"github.com/Frankie466/frank-quiz/internal/domain"
	"github.com/Frankie466/frank-quiz/internal/phone"
	"github.com/Frankie466/frank-quiz/internal/store"
	"github.com/Frankie466/frank-quiz/pkg/darajaclient"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service       *app.Service
	jwtSecret     string
	jwtExpiry     time.Duration
	callbackToken string
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, jwtSecret string, jwtExpiry time.Duration, callbackToken string) *Handlers {
	return &Handlers{
		service:       service,
		jwtSecret:     jwtSecret,
		jwtExpiry:     jwtExpiry,
		callbackToken: callbackToken,
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type authResponse struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

// RegisterHandler creates a new account and returns a session token.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, phone.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "Enter a valid Kenyan phone number")
		case errors.Is(err, app.ErrInvalidPIN), errors.Is(err, app.ErrPINMismatch), errors.Is(err, app.ErrUnknownReferralCode):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicatePhone):
			writeError(w, http.StatusConflict, "This phone number is already registered")
		default:
			log.Printf("level=error component=api endpoint=register err=%v", err)
			writeError(w, http.StatusInternalServerError, "Registration failed, please try again")
		}
		return
	}

	token, err := GenerateToken(h.jwtSecret, h.jwtExpiry, account.ID)
	if err != nil {
		log.Printf("level=error component=api endpoint=register msg=\"token issue failed\" err=%v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed, please try again")
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Account created. A KSh 500 welcome bonus has been added to your wallet.",
		Data:    authResponse{Token: token, Account: account},
	})
}

// LoginHandler authenticates a phone/PIN pair and returns a session token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid phone number or PIN")
			return
		}
		log.Printf("level=error component=api endpoint=login err=%v", err)
		writeError(w, http.StatusInternalServerError, "Login failed, please try again")
		return
	}

	token, err := GenerateToken(h.jwtSecret, h.jwtExpiry, account.ID)
	if err != nil {
		log.Printf("level=error component=api endpoint=login msg=\"token issue failed\" err=%v", err)
		writeError(w, http.StatusInternalServerError, "Login failed, please try again")
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Welcome back",
		Data:    authResponse{Token: token, Account: account},
	})
}

// DashboardHandler returns the account summary.
func (h *Handlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	summary, err := h.service.GetDashboard(r.Context(), accountID)
	if err != nil {
		log.Printf("level=error component=api endpoint=dashboard account_id=%s err=%v", accountID, err)
		writeError(w, http.StatusInternalServerError, "Could not load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "OK", Data: summary})
}

// TransactionsHandler lists recent ledger entries.
func (h *Handlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	transactions, err := h.service.ListTransactions(r.Context(), accountID, limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=transactions account_id=%s err=%v", accountID, err)
		writeError(w, http.StatusInternalServerError, "Could not load transactions")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "OK", Data: transactions})
}

// WithdrawHandler debits the wallet and opens a payout request.
func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amountCents, err := h.service.Withdraw(r.Context(), accountID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "Enter an amount greater than zero")
		case errors.Is(err, phone.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "Enter a valid Kenyan phone number")
		case errors.Is(err, store.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, "Insufficient balance")
		default:
			log.Printf("level=error component=api endpoint=withdraw account_id=%s err=%v", accountID, err)
			writeError(w, http.StatusInternalServerError, "Withdrawal failed, please try again")
		}
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Withdrawal request received and is being processed",
		Data:    map[string]int64{"amount_cents": amountCents},
	})
}

// SurveysHandler lists surveys available to the account.
func (h *Handlers) SurveysHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	surveys, err := h.service.ListAvailableSurveys(r.Context(), accountID, limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=surveys account_id=%s err=%v", accountID, err)
		writeError(w, http.StatusInternalServerError, "Could not load surveys")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "OK", Data: surveys})
}

// StartSurveyHandler opens an assignment.
func (h *Handlers) StartSurveyHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	surveyID, err := uuid.Parse(chi.URLParam(r, "surveyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid survey id")
		return
	}

	if err := h.service.StartSurvey(r.Context(), accountID, surveyID); err != nil {
		switch {
		case errors.Is(err, store.ErrSurveyNotFound):
			writeError(w, http.StatusNotFound, "Survey not found")
		case errors.Is(err, store.ErrSurveyNotAvailable):
			writeError(w, http.StatusBadRequest, "Survey is not available")
		case errors.Is(err, store.ErrSurveyAlreadyCompleted):
			writeError(w, http.StatusConflict, "You have already completed this survey")
		case errors.Is(err, app.ErrPremiumRequired):
			writeError(w, http.StatusForbidden, "Upgrade to premium to take this survey")
		default:
			log.Printf("level=error component=api endpoint=start_survey account_id=%s err=%v", accountID, err)
			writeError(w, http.StatusInternalServerError, "Could not start survey")
		}
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Survey started"})
}

// CompleteSurveyHandler settles an assignment and credits the reward.
func (h *Handlers) CompleteSurveyHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	surveyID, err := uuid.Parse(chi.URLParam(r, "surveyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid survey id")
		return
	}

	rewardCents, err := h.service.CompleteSurvey(r.Context(), accountID, surveyID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSurveyNotFound), errors.Is(err, store.ErrSurveyNotAvailable):
			writeError(w, http.StatusBadRequest, "Survey is not in progress")
		case errors.Is(err, store.ErrSurveyAlreadyCompleted):
			writeError(w, http.StatusConflict, "You have already completed this survey")
		default:
			log.Printf("level=error component=api endpoint=complete_survey account_id=%s err=%v", accountID, err)
			writeError(w, http.StatusInternalServerError, "Could not complete survey")
		}
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Survey completed, reward added to your wallet",
		Data:    map[string]int64{"reward_cents": rewardCents},
	})
}

// InitiatePaymentHandler sends the premium upgrade STK push.
func (h *Handlers) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, customerMessage, err := h.service.InitiatePremiumPayment(r.Context(), accountID, req)
	if err != nil {
		var limited *app.RateLimitedError
		switch {
		case errors.Is(err, store.ErrAlreadyPremium):
			writeError(w, http.StatusConflict, "Premium membership is already active")
		case errors.Is(err, phone.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "Enter a valid Kenyan phone number")
		case errors.As(err, &limited):
			w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
			writeError(w, http.StatusTooManyRequests, "Too many payment attempts, please wait a moment")
		default:
			if msg, rejected := app.IsGatewayRejection(err); rejected {
				writeError(w, http.StatusBadRequest, msg)
				return
			}
			// Unavailable, auth failure, timeout: one generic retry message,
			// full detail stays in the logs.
			log.Printf("level=error component=api endpoint=initiate_payment account_id=%s err=%v", accountID, err)
			if errors.Is(err, darajaclient.ErrUnavailable) || errors.Is(err, darajaclient.ErrTimeout) || errors.Is(err, darajaclient.ErrAuthFailed) {
				writeError(w, http.StatusBadGateway, "M-Pesa is not reachable right now, please try again shortly")
				return
			}
			writeError(w, http.StatusInternalServerError, "Payment could not be started, please try again")
		}
		return
	}

	if customerMessage == "" {
		customerMessage = "Check your phone and enter your M-Pesa PIN to complete payment"
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: customerMessage,
		Data: map[string]string{
			"checkoutRequestId": payment.CheckoutRequestID,
			"merchantRequestId": payment.MerchantRequestID,
		},
	})
}

// PaymentStatusHandler reports the state of a payment to the polling client.
func (h *Handlers) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	checkoutRequestID := r.URL.Query().Get("checkoutRequestId")
	if checkoutRequestID == "" {
		writeError(w, http.StatusBadRequest, "checkoutRequestId is required")
		return
	}

	status, err := h.service.CheckPaymentStatus(r.Context(), accountID, checkoutRequestID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, "Payment not found")
			return
		}
		log.Printf("level=error component=api endpoint=payment_status account_id=%s err=%v", accountID, err)
		writeError(w, http.StatusInternalServerError, "Could not check payment status")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "OK", Data: status})
}

// stkAck is the acknowledgement body the provider expects.
type stkAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// StkCallbackHandler receives asynchronous settlement callbacks from the
// provider. The URL carries a shared-secret token segment; a wrong token gets
// 404 so the route does not advertise itself.
func (h *Handlers) StkCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "token") != h.callbackToken {
		log.Printf("level=warn component=api endpoint=stk_callback msg=\"callback with bad token rejected\" remote=%s", r.RemoteAddr)
		http.NotFound(w, r)
		return
	}

	var cb domain.StkCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		log.Printf("level=warn component=api endpoint=stk_callback msg=\"malformed callback body\" err=%v", err)
		writeJSON(w, http.StatusBadRequest, stkAck{ResultCode: 1, ResultDesc: "Malformed request"})
		return
	}

	if err := h.service.HandleStkCallback(r.Context(), cb); err != nil {
		// Infrastructure failure: 500 so the provider retries later.
		log.Printf("level=error component=api endpoint=stk_callback err=%v", err)
		writeJSON(w, http.StatusInternalServerError, stkAck{ResultCode: 1, ResultDesc: "Internal error"})
		return
	}

	writeJSON(w, http.StatusOK, stkAck{ResultCode: 0, ResultDesc: "Success"})
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError is a helper for writing JSON error responses in the standard envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}
