package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultRPCTimeout   = 10 * time.Second
	maxRPCResponseBytes = 8 << 20
	getAccountsMethod   = "condenser_api.get_accounts"
)

// ErrAccountNotFound is returned when the node has no account by that name.
var ErrAccountNotFound = errors.New("account not found")

// AccountFetcher looks up accounts by name.
type AccountFetcher interface {
	GetAccount(ctx context.Context, name string) (*Account, error)
}

// Client is a minimal JSON-RPC client for the chain's API node.
type Client struct {
	url    string
	http   *http.Client
	nextID atomic.Int64
}

// NewClient creates a client for the node at rpcURL.
func NewClient(rpcURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &Client{
		url:  strings.TrimSpace(rpcURL),
		http: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// GetAccount fetches a single account. It returns ErrAccountNotFound when the
// node reports no such account.
func (c *Client) GetAccount(ctx context.Context, name string) (*Account, error) {
	var accounts []Account
	if err := c.call(ctx, getAccountsMethod, []any{[]string{name}}, &accounts); err != nil {
		return nil, fmt.Errorf("get account %q: %w", name, err)
	}
	for i := range accounts {
		if accounts[i].Name == name {
			return &accounts[i], nil
		}
	}
	return nil, ErrAccountNotFound
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCResponseBytes))
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc node returned status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode rpc result: %w", err)
	}
	return nil
}
