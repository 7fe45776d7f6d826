// Package solana is a minimal JSON-RPC client for the Solana chain, covering
// the calls the fee watcher and the payout settler need.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client talks JSON-RPC 2.0 to a Solana node.
type Client struct {
	rpcURL     string
	commitment string
	httpClient *http.Client
	reqID      atomic.Int64
}

// NewClient creates a new Solana RPC client. commitment defaults to
// "confirmed" when empty.
func NewClient(rpcURL, commitment string) *Client {
	if commitment == "" {
		commitment = "confirmed"
	}
	return &Client{
		rpcURL:     rpcURL,
		commitment: commitment,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// GetSignaturesForAddress returns up to limit of the most recent transaction
// signatures involving the given address, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	params := []any{
		address,
		map[string]any{
			"limit":      limit,
			"commitment": c.commitment,
		},
	}

	raw, err := c.call(ctx, "getSignaturesForAddress", params)
	if err != nil {
		return nil, fmt.Errorf("solana: get signatures for %s: %w", address, err)
	}

	var sigs []SignatureInfo
	if err := json.Unmarshal(raw, &sigs); err != nil {
		return nil, fmt.Errorf("solana: decode signatures for %s: %w", address, err)
	}
	return sigs, nil
}

// GetTransaction fetches a confirmed transaction by signature. It returns
// nil (and no error) when the node has no record of the signature.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionResult, error) {
	params := []any{
		signature,
		map[string]any{
			"encoding":                       "json",
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}

	raw, err := c.call(ctx, "getTransaction", params)
	if err != nil {
		return nil, fmt.Errorf("solana: get transaction %s: %w", signature, err)
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var tx TransactionResult
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("solana: decode transaction %s: %w", signature, err)
	}
	return &tx, nil
}

// GetLatestBlockhash returns the most recent blockhash for transaction
// building.
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	params := []any{
		map[string]any{"commitment": c.commitment},
	}

	raw, err := c.call(ctx, "getLatestBlockhash", params)
	if err != nil {
		return "", fmt.Errorf("solana: get latest blockhash: %w", err)
	}

	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("solana: decode latest blockhash: %w", err)
	}
	if result.Value.Blockhash == "" {
		return "", fmt.Errorf("solana: latest blockhash: empty response")
	}
	return result.Value.Blockhash, nil
}

// GetBalance returns the lamport balance of the given account.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	params := []any{
		address,
		map[string]any{"commitment": c.commitment},
	}

	raw, err := c.call(ctx, "getBalance", params)
	if err != nil {
		return 0, fmt.Errorf("solana: get balance %s: %w", address, err)
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("solana: decode balance %s: %w", address, err)
	}
	return result.Value, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns
// its signature.
func (c *Client) SendTransaction(ctx context.Context, base64Tx string) (string, error) {
	params := []any{
		base64Tx,
		map[string]any{
			"encoding":            "base64",
			"preflightCommitment": c.commitment,
		},
	}

	raw, err := c.call(ctx, "sendTransaction", params)
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", err)
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return "", fmt.Errorf("solana: decode send result: %w", err)
	}
	return signature, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// call executes one JSON-RPC request and returns the raw "result" field.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	reqBody := rpcRequest{
		Jsonrpc: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}
