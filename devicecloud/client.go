// Package devicecloud is a small client for the signed device cloud REST API.
package devicecloud

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
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	tokenPath = "/v1.0/token"
	// tokens are refreshed this long before the cloud expires them
	tokenExpiryMargin = 60 * time.Second
)

// ErrAPI is wrapped by every error the cloud reports in its response envelope.
var ErrAPI = errors.New("device cloud api error")

// APIError is a success=false response.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("device cloud error %d: %s", e.Code, e.Msg)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// Command is a single data point written to a device.
type Command struct {
	Code  string      `json:"code"`
	Value interface{} `json:"value"`
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
	T       int64           `json:"t"`
}

type tokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireTime   int64  `json:"expire_time"`
	UID          string `json:"uid"`
}

type Options struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	RequestsPerSecond float64
	Timeout           time.Duration
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string

	httpClient *http.Client
	limiter    *rate.Limiter

	now   func() time.Time
	nonce func() string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" || opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("device cloud base url, client id and client secret are required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid device cloud base url: %w", err)
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		now:          time.Now,
		nonce:        func() string { return uuid.NewString() },
	}, nil
}

// SendCommands issues the commands to the device and returns the cloud's verdict.
func (c *Client) SendCommands(ctx context.Context, deviceID string, commands []Command) error {
	if deviceID == "" {
		return errors.New("device id is empty")
	}
	if len(commands) == 0 {
		return errors.New("no commands to send")
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]interface{}{"commands": commands})
	if err != nil {
		return fmt.Errorf("json.Marshal(commands): %w", err)
	}

	path := "/v1.0/iot-03/devices/" + url.PathEscape(deviceID) + "/commands"
	var ok bool
	if err := c.do(ctx, http.MethodPost, path, nil, body, token, &ok); err != nil {
		return fmt.Errorf("send commands to %s: %w", deviceID, err)
	}
	if !ok {
		return fmt.Errorf("send commands to %s: %w", deviceID, &APIError{Msg: "command rejected"})
	}
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var res tokenResult
	query := url.Values{"grant_type": {"1"}}
	if err := c.do(ctx, http.MethodGet, tokenPath, query, nil, "", &res); err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	if res.AccessToken == "" {
		return "", errors.New("fetch access token: empty token in response")
	}

	c.token = res.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(res.ExpireTime)*time.Second - tokenExpiryMargin)
	return c.token, nil
}

// invalidateToken forgets the cached token so the next call fetches a new one.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, token string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.signRequest(req, path, query, body, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		if isTokenError(env.Code) && token != "" {
			c.invalidateToken()
		}
		return &APIError{Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// isTokenError matches the cloud's invalid/expired token codes.
func isTokenError(code int) bool {
	return code == 1010 || code == 1011
}
