// Package stake checks token-stake proofs against the chain indexer's
// HTTP API. Holding a qualifying stake grants cross-community authority
// without an issued credential.
package stake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snailscoop/modauthority/internal/moderation"
)

const defaultTimeout = 10 * time.Second

// Verifier implements moderation.StakeVerifier over HTTP.
type Verifier struct {
	baseURL   string
	minAmount int64
	http      *http.Client
}

var _ moderation.StakeVerifier = (*Verifier)(nil)

// NewVerifier creates a verifier. minAmount is the qualifying stake in
// the chain's base denomination.
func NewVerifier(baseURL string, minAmount int64) *Verifier {
	return &Verifier{
		baseURL:   strings.TrimRight(baseURL, "/"),
		minAmount: minAmount,
		http:      &http.Client{Timeout: defaultTimeout},
	}
}

func (v *Verifier) HoldsQualifyingStake(ctx context.Context, userID string) (bool, error) {
	u := v.baseURL + "/v1/stakes/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("indexer lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("indexer lookup: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode indexer response: %w", err)
	}
	return out.Amount >= v.minAmount, nil
}
