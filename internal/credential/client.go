package credential

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

	"github.com/google/uuid"
)

const defaultTimeout = 15 * time.Second

// Client implements Issuer against the issuer service's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Issuer = (*Client)(nil)

// NewClient creates an issuer client for the given base URL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) CredentialsByHolder(ctx context.Context, did string) ([]Credential, error) {
	var out struct {
		Credentials []Credential `json:"credentials"`
	}
	path := "/v1/credentials?holder=" + url.QueryEscape(did)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Credentials, nil
}

func (c *Client) Issue(ctx context.Context, issuerDID, holderDID, credType string, data map[string]any) (Credential, error) {
	var out Credential
	err := c.call(ctx, http.MethodPost, "/v1/credentials", map[string]any{
		"issuer_did":      issuerDID,
		"holder_did":      holderDID,
		"type":            credType,
		"data":            data,
		"idempotency_key": uuid.NewString(),
	}, &out)
	return out, err
}

func (c *Client) Revoke(ctx context.Context, credentialID, reason string) error {
	return c.call(ctx, http.MethodPost,
		"/v1/credentials/"+url.PathEscape(credentialID)+"/revoke",
		map[string]any{"reason": reason}, nil)
}

// DIDFor resolves or creates the DID for a platform user.
func (c *Client) DIDFor(ctx context.Context, userID string) (string, error) {
	var out struct {
		DID string `json:"did"`
	}
	err := c.call(ctx, http.MethodPost, "/v1/dids", map[string]any{
		"user_id": userID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.DID, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("issuer %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("issuer %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
