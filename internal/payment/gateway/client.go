package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumahq/lumina/internal/config"
	"github.com/lumahq/lumina/internal/payment/domain"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// Client talks to the payment gateway's REST API. Requests authenticate
// with the account secret as a bearer token.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) (domain.Gateway, error) {
	if strings.TrimSpace(cfg.GatewaySecret) == "" {
		return nil, errors.New("payment gateway secret is not configured")
	}
	return &Client{
		baseURL: cfg.GatewayBaseURL,
		secret:  cfg.GatewaySecret,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log.Named("payment.gateway"),
	}, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

type transactionData struct {
	Reference string               `json:"reference"`
	Status    string               `json:"status"`
	Amount    int64                `json:"amount"`
	Metadata  domain.EventMetadata `json:"metadata"`
}

func (c *Client) InitializeCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	body, err := json.Marshal(map[string]any{
		"email":    req.Email,
		"amount":   req.Amount,
		"currency": req.Currency,
		"metadata": req.Metadata,
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	var data initializeData
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return domain.CheckoutResponse{}, err
	}
	if data.Reference == "" || data.AuthorizationURL == "" {
		return domain.CheckoutResponse{}, domain.ErrGatewayUnavailable
	}

	return domain.CheckoutResponse{
		AuthorizationURL: data.AuthorizationURL,
		Reference:        data.Reference,
	}, nil
}

func (c *Client) VerifyTransaction(ctx context.Context, reference string) (domain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}

	var data transactionData
	err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data)
	if err != nil {
		return domain.Transaction{}, err
	}

	return domain.Transaction{
		Reference: data.Reference,
		Status:    domain.TransactionStatus(strings.ToLower(data.Status)),
		Amount:    data.Amount,
		Metadata:  data.Metadata,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed", zap.String("path", path), zap.Error(err))
		return domain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ErrGatewayUnavailable
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrTransactionNotFound
	case resp.StatusCode >= 500:
		c.log.Warn("gateway server error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return domain.ErrGatewayUnavailable
	case resp.StatusCode >= 400:
		return fmt.Errorf("gateway rejected request: status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.ErrGatewayUnavailable
	}
	if !env.Status {
		return fmt.Errorf("gateway error: %s", env.Message)
	}
	return json.Unmarshal(env.Data, out)
}
