// Package remote implements platform.Client against the bot gateway's
// HTTP API. The gateway owns the actual chat-platform session; this
// client only forwards moderation calls.
package remote

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

	"github.com/snailscoop/modauthority/internal/platform"
)

const defaultTimeout = 10 * time.Second

// Client talks to the gateway over HTTP. No automatic retries; a failed
// or timed-out call is reported to the caller as-is.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ platform.Client = (*Client)(nil)

// New creates a gateway client. token may be empty for unauthenticated
// local gateways.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) AdminStatus(ctx context.Context, communityID, userID string) (bool, error) {
	var out struct {
		Admin bool `json:"admin"`
	}
	err := c.call(ctx, http.MethodGet,
		fmt.Sprintf("/v1/communities/%s/admins/%s", communityID, userID), nil, &out)
	if err != nil {
		return false, err
	}
	return out.Admin, nil
}

// UserByUsername resolves an @handle through the gateway's user index.
// An unknown handle is reported as platform.ErrUserNotFound so directory
// lookup can fall through to the next strategy.
func (c *Client) UserByUsername(ctx context.Context, username string) (platform.User, error) {
	var out struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	err := c.call(ctx, http.MethodGet, "/v1/users/by-username/"+url.PathEscape(username), nil, &out)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return platform.User{}, platform.ErrUserNotFound
		}
		return platform.User{}, err
	}
	return platform.User{ID: out.ID, Username: out.Username}, nil
}

func (c *Client) SendMessage(ctx context.Context, recipientID, text string) error {
	return c.call(ctx, http.MethodPost, "/v1/messages", map[string]any{
		"recipient_id": recipientID,
		"text":         text,
	}, nil)
}

func (c *Client) RestrictMember(ctx context.Context, communityID, userID string, r platform.Restrictions, until time.Time) error {
	body := map[string]any{
		"can_send_messages": r.CanSendMessages,
		"can_send_media":    r.CanSendMedia,
		"can_add_members":   r.CanAddMembers,
		"can_pin_messages":  r.CanPinMessages,
	}
	if !until.IsZero() {
		body["until"] = until.UTC().Format(time.RFC3339)
	}
	return c.call(ctx, http.MethodPost,
		fmt.Sprintf("/v1/communities/%s/members/%s/restrict", communityID, userID), body, nil)
}

func (c *Client) BanMember(ctx context.Context, communityID, userID string, until *time.Time) error {
	body := map[string]any{}
	if until != nil {
		body["until"] = until.UTC().Format(time.RFC3339)
	}
	return c.call(ctx, http.MethodPost,
		fmt.Sprintf("/v1/communities/%s/members/%s/ban", communityID, userID), body, nil)
}

func (c *Client) UnbanMember(ctx context.Context, communityID, userID string) error {
	return c.call(ctx, http.MethodPost,
		fmt.Sprintf("/v1/communities/%s/members/%s/unban", communityID, userID), nil, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, communityID, messageID string) error {
	return c.call(ctx, http.MethodDelete,
		fmt.Sprintf("/v1/communities/%s/messages/%s", communityID, messageID), nil, nil)
}

func (c *Client) PinMessage(ctx context.Context, communityID, messageID string, silent bool) error {
	return c.call(ctx, http.MethodPost,
		fmt.Sprintf("/v1/communities/%s/messages/%s/pin", communityID, messageID),
		map[string]any{"silent": silent}, nil)
}

// statusError keeps the gateway status code inspectable so callers can
// distinguish "not found" from transport failure.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }

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
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{
			code: resp.StatusCode,
			msg:  fmt.Sprintf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
