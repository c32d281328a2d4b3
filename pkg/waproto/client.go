package waproto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"whatsgate/internal/constants"
	"whatsgate/internal/models"
	"whatsgate/pkg/waproto/types"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Client talks to the protocol endpoint over HTTP for commands and a
// websocket for the event stream. It implements types.Transport.
type Client struct {
	baseURL string
	session string
	client  *http.Client
	logger  *logrus.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(cfg models.TransportConfig, logger *logrus.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if cfg.TimeoutSec <= 0 {
		timeout = time.Duration(constants.DefaultTransportTimeoutSec) * time.Second
	}
	session := cfg.SessionName
	if session == "" {
		session = constants.DefaultSessionName
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		session: session,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Dial opens the event stream. Decoded events are delivered on the returned
// channel until the socket ends; a read failure is surfaced as a final closed
// event so the session layer sees every disconnect the same way.
func (c *Client) Dial(ctx context.Context) (<-chan types.Event, error) {
	wsURL, err := c.eventStreamURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial event stream: %w", err)
	}
	// Event batches can carry many envelopes with inline payload metadata.
	conn.SetReadLimit(4 * 1024 * 1024)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	events := make(chan types.Event, 16)
	go c.readLoop(ctx, conn, events)
	return events, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- types.Event) {
	defer close(events)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			code := int(websocket.CloseStatus(err))
			if code < 0 {
				code = 0
			}
			c.logger.WithError(err).WithField("close_code", code).Debug("Event stream ended")
			select {
			case events <- types.Event{Type: types.EventClosed, CloseCode: code}:
			case <-ctx.Done():
			}
			return
		}

		var evt types.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable stream event")
			continue
		}

		select {
		case events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) SendText(ctx context.Context, chatID, text string) (*types.SendResult, error) {
	payload := map[string]string{
		"chatId": chatID,
		"text":   text,
	}

	var result types.SendResult
	if err := c.postJSON(ctx, fmt.Sprintf("/api/%s/send-text", c.session), payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GroupMetadata(ctx context.Context, groupID string) (*types.GroupMetadata, error) {
	endpoint := fmt.Sprintf("%s/api/%s/groups/%s", c.baseURL, c.session, url.PathEscape(groupID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group metadata: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("group metadata request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var meta types.GroupMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode group metadata: %w", err)
	}
	return &meta, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, fmt.Sprintf("/api/%s/logout", c.session), struct{}{}, nil)
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request to %s failed with status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) eventStreamURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("session", c.session)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
