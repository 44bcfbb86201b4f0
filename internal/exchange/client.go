package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "https://fapi.binance.com"
	defaultTimeout    = 15 * time.Second
	defaultRecvWindow = 5 * time.Second

	// Request weights per the futures API documentation. The account-level
	// budget is 2400 weight per minute; we stay on its conservative side.
	weightAccount      = 5
	weightPositionRisk = 5
	weightAllOrders    = 5
)

// Credentials holds one account's API key pair.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Config configures the futures REST client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RecvWindow time.Duration

	// WeightPerMinute caps outbound request weight; zero means the
	// documented 2400/min budget.
	WeightPerMinute int
}

// Client talks to the USD-M futures REST API with signed requests. It is
// safe for concurrent use; the rate limiter spans all accounts sharing it.
type Client struct {
	http       *resty.Client
	limiter    *rate.Limiter
	recvWindow time.Duration
	now        func() time.Time
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = defaultRecvWindow
	}
	if cfg.WeightPerMinute <= 0 {
		cfg.WeightPerMinute = 2400
	}

	perSecond := rate.Limit(float64(cfg.WeightPerMinute) / 60.0)

	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		limiter:    rate.NewLimiter(perSecond, cfg.WeightPerMinute/10),
		recvWindow: cfg.RecvWindow,
		now:        time.Now,
	}
}

// AccountInfo fetches the account equity summary.
func (c *Client) AccountInfo(ctx context.Context, creds Credentials) (AccountInfo, error) {
	var info AccountInfo
	err := c.signedGet(ctx, creds, "/fapi/v2/account", url.Values{}, weightAccount, &info)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("fetch account info: %w", err)
	}
	return info, nil
}

// PositionRisk fetches per-symbol exposure and leverage.
func (c *Client) PositionRisk(ctx context.Context, creds Credentials) ([]PositionRisk, error) {
	var risks []PositionRisk
	err := c.signedGet(ctx, creds, "/fapi/v2/positionRisk", url.Values{}, weightPositionRisk, &risks)
	if err != nil {
		return nil, fmt.Errorf("fetch position risk: %w", err)
	}
	return risks, nil
}

// Orders fetches a symbol's order history from the given start time. The
// endpoint returns every terminal status; callers filter to FILLED.
func (c *Client) Orders(ctx context.Context, creds Credentials, symbol string, since time.Time) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	params.Set("limit", "1000")

	var orders []Order
	err := c.signedGet(ctx, creds, "/fapi/v1/allOrders", params, weightAllOrders, &orders)
	if err != nil {
		return nil, fmt.Errorf("fetch orders for %s: %w", symbol, err)
	}
	return orders, nil
}

func (c *Client) signedGet(ctx context.Context, creds Credentials, path string, params url.Values, weight int, out interface{}) error {
	if err := c.limiter.WaitN(ctx, weight); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	query := params.Encode()
	query += "&signature=" + Signature(creds.SecretKey, query)

	// The query is sent verbatim: re-encoding would reorder parameters and
	// break what the signature covers.
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", creds.APIKey).
		SetResult(out).
		SetError(&apiErr).
		Get(path + "?" + query)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if apiErr.Code != 0 {
			return fmt.Errorf("api error %d: %s", apiErr.Code, apiErr.Msg)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// Signature computes the hex HMAC-SHA256 of the query payload with the
// account secret, as the signed endpoints require.
func Signature(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
