package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	apiPrefix      = "/api/v1"
	contentType    = "application/json"
	deviceIDHeader = "X-Device-ID"

	defaultMaxRetries   = 2
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	defaultHTTPTimeout  = 15 * time.Second
)

// Options configures a Client
type Options struct {
	BaseURL      string
	APIKey       string
	DeviceID     string
	HTTPClient   *http.Client
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client talks to the accounting service over HTTP/JSON
type Client struct {
	baseURL     string
	apiKey      string
	deviceID    string
	retryClient *retryablehttp.Client
}

// NewClient creates a new Client
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = defaultRetryWaitMin
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = defaultRetryWaitMax
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = opts.HTTPClient
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = retryLogger{}
	// Hand the final response back instead of a generic "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		deviceID:    opts.DeviceID,
		retryClient: retryClient,
	}
}

// FetchTransactions lists transactions as seen from timezone. An empty month
// returns the whole history.
func (c *Client) FetchTransactions(ctx context.Context, timezone, month string) ([]*domain.Transaction, error) {
	query := url.Values{}
	if timezone != "" {
		query.Set("timezone", timezone)
	}
	if month != "" {
		query.Set("month_year", month)
	}

	var transactions []*domain.Transaction
	if err := c.do(ctx, "list transactions", http.MethodGet, "/transactions", query, nil, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

// FetchOldestTransaction returns the chronologically first transaction
func (c *Client) FetchOldestTransaction(ctx context.Context) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := c.do(ctx, "oldest transaction", http.MethodGet, "/transactions/oldest", nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction stores a new transaction
func (c *Client) CreateTransaction(ctx context.Context, input domain.TransactionInput) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := c.do(ctx, "create transaction", http.MethodPost, "/transactions", nil, transactionBody(input), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransaction replaces a transaction
func (c *Client) UpdateTransaction(ctx context.Context, id int32, input domain.TransactionInput) (*domain.Transaction, error) {
	var t domain.Transaction
	path := fmt.Sprintf("/transactions/%d", id)
	if err := c.do(ctx, "update transaction", http.MethodPut, path, nil, transactionBody(input), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTransaction removes a transaction
func (c *Client) DeleteTransaction(ctx context.Context, id int32) error {
	return c.do(ctx, "delete transaction", http.MethodDelete, fmt.Sprintf("/transactions/%d", id), nil, nil, nil)
}

// FetchMonthlyBudgets lists every monthly budget
func (c *Client) FetchMonthlyBudgets(ctx context.Context) ([]*domain.MonthlyBudget, error) {
	var budgets []*domain.MonthlyBudget
	if err := c.do(ctx, "list monthly budgets", http.MethodGet, "/monthly-budgets", nil, nil, &budgets); err != nil {
		return nil, err
	}
	return budgets, nil
}

// FetchMonthlyBudget returns the budget of one month
func (c *Client) FetchMonthlyBudget(ctx context.Context, month string) (*domain.MonthlyBudget, error) {
	var b domain.MonthlyBudget
	if err := c.do(ctx, "get monthly budget", http.MethodGet, "/monthly-budgets/"+url.PathEscape(month), nil, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateMonthlyBudget creates the budget of a month
func (c *Client) CreateMonthlyBudget(ctx context.Context, month string, amount decimal.Decimal, rolloverEnabled bool) (*domain.MonthlyBudget, error) {
	body := map[string]interface{}{
		"month_year":       month,
		"budget_amount":    amount.StringFixed(2),
		"rollover_enabled": rolloverEnabled,
	}

	var b domain.MonthlyBudget
	if err := c.do(ctx, "create monthly budget", http.MethodPost, "/monthly-budgets", nil, body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateMonthlyBudget applies a partial update to a month's budget
func (c *Client) UpdateMonthlyBudget(ctx context.Context, month string, update domain.MonthlyBudgetUpdate) (*domain.MonthlyBudget, error) {
	var b domain.MonthlyBudget
	if err := c.do(ctx, "update monthly budget", http.MethodPut, "/monthly-budgets/"+url.PathEscape(month), nil, update, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// FetchBudgetSummary returns the server-computed summary of a month
func (c *Client) FetchBudgetSummary(ctx context.Context, month string) (*domain.BudgetSummary, error) {
	var s domain.BudgetSummary
	if err := c.do(ctx, "budget summary", http.MethodGet, "/budget-summary/"+url.PathEscape(month), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchSettings lists the server settings
func (c *Client) FetchSettings(ctx context.Context) ([]*domain.Setting, error) {
	var settings []*domain.Setting
	if err := c.do(ctx, "list settings", http.MethodGet, "/settings", nil, nil, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// UpdateSetting writes a setting, creating it when the server has none
func (c *Client) UpdateSetting(ctx context.Context, key, value string) (*domain.Setting, error) {
	body := map[string]string{"key": key, "value": value}

	var s domain.Setting
	err := c.do(ctx, "update setting", http.MethodPut, "/settings", nil, body, &s)
	if errors.Is(err, domain.ErrNotFound) {
		err = c.do(ctx, "create setting", http.MethodPost, "/settings", nil, body, &s)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RegisterDevice registers this device and its username
func (c *Client) RegisterDevice(ctx context.Context, deviceID, username, deviceName string) (*domain.Device, error) {
	body := map[string]string{
		"device_id":   deviceID,
		"username":    username,
		"device_name": deviceName,
	}

	var d domain.Device
	if err := c.do(ctx, "register device", http.MethodPost, "/devices", nil, body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, result interface{}) error {
	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.deviceID != "" {
		req.Header.Set(deviceIDHeader, c.deviceID)
	}

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(op, errors.Wrap(err, "failed to read response"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &Error{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: errors.Wrap(domain.ErrRemoteUnavailable, err.Error())}
		}
	}
	return nil
}

func transactionBody(input domain.TransactionInput) map[string]interface{} {
	body := map[string]interface{}{
		"device_id": input.DeviceID,
		"name":      input.Name,
		"amount":    input.Amount.StringFixed(2),
		"type":      string(input.Type),
	}
	if !input.Timestamp.IsZero() {
		body["timestamp"] = input.Timestamp.Format(time.RFC3339Nano)
	}
	return body
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Fields(keysAndValues).Msg(msg)
}

func (retryLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Trace().Fields(keysAndValues).Msg(msg)
}

func (retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Fields(keysAndValues).Msg(msg)
}
