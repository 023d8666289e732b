// Package messenger provides a client for the messenger chat API.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andrewanujbusiness/messenger/internal/models"
)

// DefaultBaseURL is used when no server URL is configured.
const DefaultBaseURL = "http://localhost:3001"

// ErrNotLoggedIn is returned by calls that need a session token.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messenger error %d: %s", e.StatusCode, e.Message)
}

// Client is a messenger API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	User       *models.Profile
	HTTPClient *http.Client
}

// Session is the login state persisted between CLI invocations.
type Session struct {
	BaseURL string          `json:"base_url"`
	Token   string          `json:"token"`
	User    *models.Profile `json:"user"`
}

// NewClient creates a new client and loads any saved session.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	configDir := os.Getenv("MESSENGER_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".messenger")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadSession()
	return c
}

func (c *Client) sessionFile() string {
	return filepath.Join(c.ConfigDir, "session.json")
}

// LoadSession restores the token saved by a previous login against the same server.
func (c *Client) LoadSession() error {
	data, err := os.ReadFile(c.sessionFile())
	if err != nil {
		return err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.BaseURL != c.BaseURL {
		return nil
	}

	c.Token = s.Token
	c.User = s.User
	return nil
}

// SaveSession writes the current token to disk.
func (c *Client) SaveSession() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Session{BaseURL: c.BaseURL, Token: c.Token, User: c.User}, "", "  ")
	return os.WriteFile(c.sessionFile(), data, 0600)
}

// ClearSession forgets the token locally.
func (c *Client) ClearSession() error {
	c.Token = ""
	c.User = nil
	err := os.Remove(c.sessionFile())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out interface{}, authed bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.Token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Body: respBody}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// LoginResponse is the response from a successful login.
type LoginResponse struct {
	Token string          `json:"token"`
	User  *models.Profile `json:"user"`
}

// Login exchanges credentials for a session token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	req := map[string]string{"username": username, "password": password}

	var resp LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, "/login", req, &resp, false); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	c.User = resp.User
	return &resp, nil
}

// ListUsers lists every user except the caller.
func (c *Client) ListUsers(ctx context.Context) ([]models.Profile, error) {
	var users []models.Profile
	if err := c.doRequest(ctx, http.MethodGet, "/users", nil, &users, true); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser gets a user's profile.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.Profile, error) {
	var user models.Profile
	if err := c.doRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetConversation returns the caller's history with another user, oldest first.
func (c *Client) GetConversation(ctx context.Context, userID string) ([]models.Message, error) {
	var messages []models.Message
	if err := c.doRequest(ctx, http.MethodGet, "/conversations/"+url.PathEscape(userID), nil, &messages, true); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage sends text over HTTP and returns the stored message.
func (c *Client) SendMessage(ctx context.Context, receiverID, text string) (*models.Message, error) {
	req := map[string]string{"receiverId": receiverID, "text": text}

	var msg models.Message
	if err := c.doRequest(ctx, http.MethodPost, "/messages", req, &msg, true); err != nil {
		return nil, err
	}
	return &msg, nil
}

type toneResponse struct {
	Success bool         `json:"success,omitempty"`
	Tone    *models.Tone `json:"tone"`
}

// SetTone sets how messages from targetUserID are rendered for the caller.
// An empty tone clears the preference.
func (c *Client) SetTone(ctx context.Context, targetUserID string, tone models.Tone) (models.Tone, error) {
	req := struct {
		TargetUserID string       `json:"targetUserId"`
		Tone         *models.Tone `json:"tone"`
	}{TargetUserID: targetUserID}
	if tone != "" {
		req.Tone = &tone
	}

	var resp toneResponse
	if err := c.doRequest(ctx, http.MethodPost, "/tone-preference", req, &resp, true); err != nil {
		return "", err
	}
	if resp.Tone == nil {
		return "", nil
	}
	return *resp.Tone, nil
}

// GetTone reports the caller's preference for targetUserID; empty means none.
func (c *Client) GetTone(ctx context.Context, targetUserID string) (models.Tone, error) {
	var resp toneResponse
	if err := c.doRequest(ctx, http.MethodGet, "/tone-preference/"+url.PathEscape(targetUserID), nil, &resp, true); err != nil {
		return "", err
	}
	if resp.Tone == nil {
		return "", nil
	}
	return *resp.Tone, nil
}

// Check is one dependency's health.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503 with the same body.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp, false)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		if err := json.Unmarshal(apiErr.Body, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatsResponse carries aggregate counts.
type StatsResponse struct {
	TotalUsers         int64 `json:"total_users"`
	TotalConversations int64 `json:"total_conversations"`
	TotalMessages      int64 `json:"total_messages"`
}

// Stats returns aggregate counts.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/stats", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}
