package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"livecast/native/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "api")

const defaultTimeout = 10 * time.Second

type iceConfigResponse struct {
	ICEServers []domain.ICEServer `json:"iceServers"`
}

// Client fetches short-lived ICE server credentials from the backend.
type Client struct {
	url   string
	token string
	http  *http.Client
}

// NewClient creates an API client for the ICE configuration endpoint at url.
// token is sent as a bearer token when non-empty.
func NewClient(url, token string) *Client {
	return &Client{
		url:   url,
		token: token,
		http:  &http.Client{Timeout: defaultTimeout},
	}
}

// FetchICEServers calls the backend to obtain STUN/TURN servers with fresh
// TURN credentials.
func (c *Client) FetchICEServers(ctx context.Context) ([]domain.ICEServer, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var iceResp iceConfigResponse
	if err := json.Unmarshal(respBody, &iceResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(iceResp.ICEServers) == 0 {
		return nil, errors.New("response has no ice servers")
	}

	logger.Infof("fetched %d ICE servers", len(iceResp.ICEServers))
	return iceResp.ICEServers, nil
}
