package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
)

// Client talks to the media engine's room admin API. Requests carry a
// short-lived HS256 bearer token minted from the engine API key pair,
// which is how hosted engines authenticate server-side callers.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret []byte
	http      *http.Client
}

func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	return c.post(ctx, "/admin/rooms/delete", map[string]string{
		"room": string(room),
	})
}

func (c *Client) RemoveParticipant(ctx context.Context, room domain.RoomID, id domain.Identity) error {
	return c.post(ctx, "/admin/rooms/remove_participant", map[string]string{
		"room":     string(room),
		"identity": string(id),
	})
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	token, err := c.adminToken()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Error().Str("module", "media").Str("path", path).Int("status", resp.StatusCode).Msg("media admin call failed")
		return fmt.Errorf("media: %s returned %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) adminToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    c.apiKey,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.apiSecret)
}

var _ RoomAdmin = (*Client)(nil)
