/**
 * @description
 * This package provides a client for the Safaricom Daraja API. It encapsulates
 * OAuth token acquisition, STK push initiation, and the mapping of Daraja
 * result codes to user-facing messages.
 *
 * @dependencies
 * - bytes, context, encoding/base64, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package darajaclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

var (
	// ErrUnavailable indicates the gateway could not be reached at all.
	ErrUnavailable = errors.New("daraja gateway unavailable")
	// ErrAuthFailed indicates the consumer key/secret pair was rejected.
	ErrAuthFailed = errors.New("daraja authentication failed")
	// ErrTimeout indicates the gateway did not answer within the client timeout.
	ErrTimeout = errors.New("daraja request timed out")
	// ErrInvalidAmount indicates a non-positive charge amount, which Daraja
	// would reject anyway; it is caught before any request is sent.
	ErrInvalidAmount = errors.New("stk push amount must be greater than zero")
)

// resultMessages maps Daraja result codes to messages suitable for end users.
// Unknown codes fall back to the description Daraja sent.
var resultMessages = map[string]string{
	"1":    "Insufficient M-Pesa balance",
	"17":   "Unable to process the request, try again",
	"26":   "System busy, try again in a short while",
	"1001": "Another transaction is already in progress for this number",
	"1019": "Transaction expired, no response from M-Pesa",
	"1025": "Unable to send the payment prompt, try again",
	"1032": "Payment request cancelled",
	"1037": "Payment prompt timed out, check your phone and try again",
	"2001": "Wrong M-Pesa PIN entered",
	"9999": "Unable to process the request, try again",
}

// MessageForCode returns the user-facing message for a Daraja result code.
// The fallback description is returned verbatim for codes not in the table.
func MessageForCode(code, fallback string) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	if fallback != "" {
		return fallback
	}
	return "Payment could not be completed"
}

// RejectedError is returned when Daraja accepts the HTTP request but rejects
// the STK push itself, for example with an invalid shortcode or a malformed
// phone number.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("daraja rejected stk push: code=%s message=%s", e.Code, e.Message)
}

// Client is a client for the Daraja API.
type Client struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	HTTPClient     *http.Client

	// now is injectable for tests; the STK password embeds a timestamp.
	now func() time.Time
}

// NewClient creates a new Daraja API client.
func NewClient(baseURL, consumerKey, consumerSecret, shortCode, passKey string) *Client {
	return &Client{
		BaseURL:        baseURL,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		ShortCode:      shortCode,
		PassKey:        passKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// StkPushRequest is the payload Daraja expects for an STK push.
type StkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// StkPushResponse is Daraja's acknowledgement of an accepted STK push.
type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type rejectionResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// GetAccessToken fetches an OAuth token using HTTP basic auth with the
// consumer key and secret.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	url := c.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.ConsumerKey, c.ConsumerSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		log.Printf("level=warn component=daraja_client op=get_token status=%d msg=\"credentials rejected\"", resp.StatusCode)
		return "", ErrAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", ErrAuthFailed
	}
	return tokenResp.AccessToken, nil
}

// InitiateStkPush sends a CustomerPayBillOnline STK push. The phone number
// must already be in the 254XXXXXXXXX provider form; the amount is whole KES.
// Daraja caps AccountReference at 12 characters and TransactionDesc at 13.
func (c *Client) InitiateStkPush(ctx context.Context, phoneNumber string, amountKES int64, callbackURL, accountReference, transactionDesc string) (*StkPushResponse, error) {
	if amountKES <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amountKES)
	}

	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(c.ShortCode + c.PassKey + timestamp))

	reqPayload := StkPushRequest{
		BusinessShortCode: c.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            fmt.Sprintf("%d", amountKES),
		PartyA:            phoneNumber,
		PartyB:            c.ShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       callbackURL,
		AccountReference:  truncate(accountReference, 12),
		TransactionDesc:   truncate(transactionDesc, 13),
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stk push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create stk push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stk push response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		log.Printf("level=warn component=daraja_client op=stk_push status=%d msg=\"token rejected\"", resp.StatusCode)
		return nil, ErrAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var rejection rejectionResponse
		if err := json.Unmarshal(bodyBytes, &rejection); err != nil || rejection.ErrorMessage == "" {
			log.Printf("level=warn component=daraja_client op=stk_push status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("%w: stk push returned status %d", ErrUnavailable, resp.StatusCode)
		}
		log.Printf("level=warn component=daraja_client op=stk_push status=%d code=%q message=%q", resp.StatusCode, rejection.ErrorCode, rejection.ErrorMessage)
		return nil, &RejectedError{Code: rejection.ErrorCode, Message: rejection.ErrorMessage}
	}

	var pushResp StkPushResponse
	if err := json.Unmarshal(bodyBytes, &pushResp); err != nil {
		return nil, fmt.Errorf("failed to decode stk push response: %w", err)
	}

	// ResponseCode "0" means the push was queued; anything else is a rejection
	// even on a 200.
	if pushResp.ResponseCode != "0" {
		log.Printf("level=warn component=daraja_client op=stk_push code=%q desc=%q msg=\"push rejected with 2xx status\"", pushResp.ResponseCode, pushResp.ResponseDescription)
		return nil, &RejectedError{Code: pushResp.ResponseCode, Message: pushResp.ResponseDescription}
	}
	if pushResp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk push response missing CheckoutRequestID", ErrUnavailable)
	}

	return &pushResp, nil
}

func classifyTransportError(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
