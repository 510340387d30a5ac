package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
)

const loginMethod = "user.login"

// allowedMethods are the upstream methods callers may invoke. Anything else
// fails before a request is sent.
var allowedMethods = map[string]struct{}{
	"apiinfo.version": {},
	"host.get":        {},
	"hostgroup.get":   {},
	"item.get":        {},
	"history.get":     {},
	"trend.get":       {},
	"problem.get":     {},
	"event.get":       {},
	"trigger.get":     {},
	"graph.get":       {},
	"template.get":    {},
	"service.get":     {},
	"sla.get":         {},
	"sla.getsli":      {},
}

// unauthenticated methods must be sent without a session token.
var unauthenticated = map[string]struct{}{
	"apiinfo.version": {},
	loginMethod:       {},
}

// Allowed reports whether method may be called through the proxy.
func Allowed(method string) bool {
	_, ok := allowedMethods[method]
	return ok
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Auth    string `json:"auth,omitempty"`
	ID      int64  `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int64           `json:"id"`
}

// RPCError is an envelope-level error returned by the upstream API.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *RPCError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream error %d: %s %s", e.Code, e.Message, e.Data)
}

func (e *RPCError) Unwrap() error { return common.ErrUpstreamError }

// SessionExpired reports whether the upstream rejected the session token.
func (e *RPCError) SessionExpired() bool {
	text := strings.ToLower(e.Message + " " + e.Data)
	return strings.Contains(text, "re-login") ||
		strings.Contains(text, "not authorised") ||
		strings.Contains(text, "not authorized") ||
		strings.Contains(text, "session terminated")
}

// Client is a JSON-RPC 2.0 client for the monitoring API.
type Client struct {
	http   *http.Client
	nextID atomic.Int64
}

func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Login obtains a session token.
func (c *Client) Login(ctx context.Context, baseURL, username, password string) (string, error) {
	raw, err := c.do(ctx, baseURL, loginMethod, map[string]string{
		"username": username,
		"password": password,
	}, "")
	if err != nil {
		return "", err
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil || token == "" {
		return "", fmt.Errorf("%w: login returned no session", common.ErrUpstreamError)
	}
	return token, nil
}

// Call invokes an allow-listed method with the given session token.
func (c *Client) Call(ctx context.Context, baseURL, method string, params any, token string) (json.RawMessage, error) {
	if !Allowed(method) {
		return nil, fmt.Errorf("%w: %s", common.ErrMethodNotAllowed, method)
	}
	if _, ok := unauthenticated[method]; ok {
		token = ""
	}
	return c.do(ctx, baseURL, method, params, token)
}

func (c *Client) do(ctx context.Context, baseURL, method string, params any, token string) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		Auth:    token,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	result, err := c.post(ctx, baseURL, body)
	observeCall(method, start, err)
	return result, err
}

func (c *Client) post(ctx context.Context, baseURL string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstreamUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: http status %d", common.ErrUpstreamUnreachable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstreamUnreachable, err)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response", common.ErrUpstreamError)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	return out.Result, nil
}
