package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"memberportal/internal/token"
)

// ErrInvalidToken means the identity provider rejected the presented
// token.
var ErrInvalidToken = errors.New("identity: invalid token")

// Identity is the verified result from the identity provider.
type Identity struct {
	SubjectID   string     `json:"subject_id"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	Role        token.Role `json:"role"`
}

// Verifier validates externally-issued identity tokens. Who mints them is
// a collaborator concern; the core only consumes the verdict.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

// Client calls the identity provider's verification endpoint.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a client for the identity provider.
func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   apiToken,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Verify posts the token for validation.
func (c *Client) Verify(ctx context.Context, idToken string) (Identity, error) {
	body, _ := json.Marshal(map[string]string{"id_token": idToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Identity{}, ErrInvalidToken
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return Identity{}, fmt.Errorf("identity service error %s: %s", resp.Status, string(raw))
	}

	var out Identity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Identity{}, fmt.Errorf("failed to decode identity response: %w", err)
	}
	if out.SubjectID == "" {
		return Identity{}, ErrInvalidToken
	}
	if !out.Role.IsValid() {
		out.Role = token.RoleUser
	}
	return out, nil
}

// Static resolves tokens from a fixed map; dev backends only.
type Static map[string]Identity

// Verify looks the token up in the map.
func (s Static) Verify(ctx context.Context, idToken string) (Identity, error) {
	id, ok := s[idToken]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}
