package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"chipereganyu-settlement/internal/config"
	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/metrics"
)

const serviceName = "paychangu"

const (
	pathMobileMoneyCollection = "/mobile-money/payments/initialize"
	pathBankCollection        = "/direct-charge/payments/initialize"
	pathPayout                = "/direct-charge/payouts/initialize"
	pathVerify                = "/direct-charge/transactions/%s/details"
)

// Client is the adapter over the payment gateway's mobile money and bank
// transfer rails. Callers work in integer minor units only.
type Client struct {
	*Resolver

	baseURL    string
	secretKey  string
	currency   string
	decimals   int32
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rps
	}
	return &Client{
		Resolver:   NewResolver(cfg.Operators, cfg.Banks),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		currency:   cfg.Currency,
		decimals:   cfg.CurrencyDecimals,
		timeout:    timeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FormatAmount renders minor units the way the rail expects them.
func (c *Client) FormatAmount(minor int64) string {
	return decimal.New(minor, -c.decimals).StringFixed(c.decimals)
}

type collectionMobileMoneyRequest struct {
	OperatorRefID string `json:"mobile_money_operator_ref_id"`
	Mobile        string `json:"mobile"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ChargeID      string `json:"charge_id"`
}

type collectionBankRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ChargeID      string `json:"charge_id"`
	PaymentMethod string `json:"payment_method"`
}

type payoutRequest struct {
	PayoutMethod      string `json:"payout_method"`
	OperatorRefID     string `json:"mobile_money_operator_ref_id,omitempty"`
	Mobile            string `json:"mobile,omitempty"`
	BankUUID          string `json:"bank_uuid,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	BankAccountName   string `json:"bank_account_name,omitempty"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	ChargeID          string `json:"charge_id"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    *struct {
		Transaction *struct {
			RefID   string `json:"ref_id"`
			TraceID string `json:"trace_id"`
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"transaction"`
		PaymentAccountDetails *domain.PaymentAccountDetails `json:"payment_account_details"`
	} `json:"data"`
}

// Initiate dispatches one request to the rail. It never retries.
func (c *Client) Initiate(ctx context.Context, req domain.GatewayRequest) (*domain.GatewayResult, error) {
	path, body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "initiate", http.MethodPost, path, body)
}

// Verify asks the rail for the current status of a charge.
func (c *Client) Verify(ctx context.Context, chargeID string) (*domain.GatewayResult, error) {
	return c.do(ctx, "verify", http.MethodGet, fmt.Sprintf(pathVerify, url.PathEscape(chargeID)), nil)
}

func (c *Client) buildRequest(req domain.GatewayRequest) (string, any, error) {
	if req.Amount <= 0 {
		return "", nil, domain.ErrInvalidAmount
	}
	amount := c.FormatAmount(req.Amount)

	if req.Direction == domain.DirectionCollection {
		switch route := req.Route.(type) {
		case domain.MobileMoneyRoute:
			return pathMobileMoneyCollection, collectionMobileMoneyRequest{
				OperatorRefID: route.Operator.RefID,
				Mobile:        route.Phone,
				Amount:        amount,
				Currency:      c.currency,
				ChargeID:      req.ChargeID,
			}, nil
		case domain.VirtualAccountRoute:
			return pathBankCollection, collectionBankRequest{
				Amount:        amount,
				Currency:      c.currency,
				ChargeID:      req.ChargeID,
				PaymentMethod: "mobile_bank_transfer",
			}, nil
		}
		return "", nil, domain.NewError(domain.KindInvalidIntent, "route %T cannot collect", req.Route)
	}

	p := payoutRequest{Amount: amount, Currency: c.currency, ChargeID: req.ChargeID}
	switch route := req.Route.(type) {
	case domain.MobileMoneyRoute:
		p.PayoutMethod = string(domain.RailMobileMoney)
		p.OperatorRefID = route.Operator.RefID
		p.Mobile = route.Phone
	case domain.BankRoute:
		p.PayoutMethod = string(domain.RailBankTransfer)
		p.BankUUID = route.Bank.UUID
		p.BankAccountNumber = route.AccountNumber
		p.BankAccountName = route.AccountName
	default:
		return "", nil, domain.NewError(domain.KindInvalidIntent, "route %T cannot receive a payout", req.Route)
	}
	return pathPayout, p, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any) (*domain.GatewayResult, error) {
	logger.ExternalServiceCall(serviceName, operation, "path", path)
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.ObserveGateway(operation, "throttled", start)
		rejected := domain.WrapError(domain.KindGatewayRejected, err, "gateway request throttled")
		logger.ExternalServiceResult(serviceName, operation, rejected)
		return nil, rejected
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		mapped := mapTransportError(err)
		metrics.ObserveGateway(operation, string(domain.KindOf(mapped)), start)
		logger.ExternalServiceResult(serviceName, operation, mapped, "path", path)
		return nil, mapped
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		mapped := mapTransportError(err)
		metrics.ObserveGateway(operation, string(domain.KindOf(mapped)), start)
		logger.ExternalServiceResult(serviceName, operation, mapped, "path", path)
		return nil, mapped
	}

	result, err := decodeResponse(resp.StatusCode, raw)
	outcome := "success"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	metrics.ObserveGateway(operation, outcome, start)
	logger.ExternalServiceResult(serviceName, operation, err, "path", path, "httpStatus", resp.StatusCode)
	return result, err
}

func decodeResponse(statusCode int, raw []byte) (*domain.GatewayResult, error) {
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	message := messageText(env.Message)

	if statusCode < 200 || statusCode > 299 {
		if message == "" {
			message = http.StatusText(statusCode)
		}
		return nil, domain.NewError(domain.KindGatewayRejected, "%s", message)
	}
	if decodeErr != nil {
		return nil, domain.WrapError(domain.KindGatewayRejected, decodeErr, "unreadable gateway response")
	}
	if !strings.EqualFold(env.Status, "success") {
		if message == "" {
			message = "gateway reported status " + env.Status
		}
		return nil, domain.NewError(domain.KindGatewayRejected, "%s", message)
	}

	result := &domain.GatewayResult{Message: message, Status: domain.ExternalStatusPending}
	if env.Data != nil {
		if tx := env.Data.Transaction; tx != nil {
			result.ExternalRef = tx.RefID
			result.TraceID = tx.TraceID
			result.RawStatus = tx.Status
			result.Status = domain.ParseExternalStatus(tx.Status)
			if result.Status == domain.ExternalStatusFailed {
				result.FailureReason = tx.Message
				if result.FailureReason == "" {
					result.FailureReason = "payment rail reported " + tx.Status
				}
			}
		}
		result.PaymentAccount = env.Data.PaymentAccountDetails
	}
	return result, nil
}

// messageText returns the gateway message verbatim. Validation failures come
// back as an object of field errors, which is kept as raw JSON.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// mapTransportError separates requests that never left the process from
// requests whose fate on the rail is unknown.
func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.KindGatewayTimeout, err, "payment gateway timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.KindGatewayTimeout, err, "payment gateway timed out")
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return domain.WrapError(domain.KindGatewayRejected, err, "payment gateway unreachable")
	}
	if errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.KindGatewayTimeout, err, "gateway request cancelled")
	}
	return domain.WrapError(domain.KindGatewayTimeout, err, "gateway response lost")
}
