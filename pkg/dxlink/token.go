// pkg/dxlink/token.go
package dxlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quotelab/quote-streamer/pkg/logger"
)

// entitlementErrorCode is the error code the brokerage API returns when the
// account has no streaming entitlement.
const entitlementErrorCode = "quote_streamer.customer_not_found_error"

// ErrEntitlementDenied reports that the account is not entitled to a quote
// stream. Retrying is pointless without an account upgrade; callers should
// surface this distinctly from generic connection failures.
var ErrEntitlementDenied = errors.New("dxlink: " + entitlementErrorCode + ": account is not entitled to a quote stream")

// QuoteToken is the single-use credential pair issued per connection
// attempt: an opaque bearer token and the streaming endpoint it is valid
// for. Tokens expire server-side and are never reused across reconnects.
type QuoteToken struct {
	Token string `json:"token"`
	URL   string `json:"dxlink-url"`
	Level string `json:"level"`
}

// TokenProvider issues connection credentials. Implemented over the
// brokerage REST API in production; tests substitute their own.
type TokenProvider interface {
	QuoteToken(ctx context.Context) (QuoteToken, error)
}

// TokenClient fetches quote tokens from the brokerage API.
type TokenClient struct {
	baseURL      string
	sessionToken string
	httpc        *http.Client
	log          *logger.Logger
}

// NewTokenClient builds a TokenClient. sessionToken is the authenticated
// API session credential, not the streaming token.
func NewTokenClient(baseURL, sessionToken string, log *logger.Logger) *TokenClient {
	return &TokenClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		sessionToken: sessionToken,
		httpc:        &http.Client{Timeout: 15 * time.Second},
		log:          log.Named("token-client"),
	}
}

// QuoteToken requests a fresh streaming credential. An HTTP 403 or a body
// carrying the entitlement error code maps to ErrEntitlementDenied; every
// other failure stays generic.
func (c *TokenClient) QuoteToken(ctx context.Context) (QuoteToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api-quote-tokens", nil)
	if err != nil {
		return QuoteToken{}, fmt.Errorf("token: build request: %w", err)
	}
	req.Header.Set("Authorization", c.sessionToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return QuoteToken{}, fmt.Errorf("token: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return QuoteToken{}, fmt.Errorf("token: read response: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden || strings.Contains(string(body), entitlementErrorCode) {
		return QuoteToken{}, ErrEntitlementDenied
	}
	if resp.StatusCode != http.StatusOK {
		return QuoteToken{}, fmt.Errorf("token: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Data QuoteToken `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return QuoteToken{}, fmt.Errorf("token: decode response: %w", err)
	}
	if payload.Data.Token == "" || payload.Data.URL == "" {
		return QuoteToken{}, fmt.Errorf("token: incomplete response (token or url missing)")
	}

	c.log.Debug("quote token issued", zap.String("level", payload.Data.Level))
	return payload.Data, nil
}
