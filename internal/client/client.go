// Package client is the HTTP persistence collaborator for the edit
// session core. It speaks the Almanac pages API and maps transport
// outcomes onto the core's failure kinds.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"almanac/internal/content"
	"almanac/internal/editsession"
)

// Client implements editsession.Persister and
// editsession.Reauthenticator over the REST API.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// New creates a client for the API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetTokens installs the credentials used for subsequent calls.
func (c *Client) SetTokens(accessToken, refreshToken string) {
	c.mu.Lock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
	c.mu.Unlock()
}

type pagePayload struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Content    content.Doc           `json:"content"`
	Location   *editsession.Location `json:"location"`
	CustomDate string                `json:"customDate,omitempty"`
}

type savePayload struct {
	Title      string                `json:"title"`
	Content    content.Doc           `json:"content"`
	Location   *editsession.Location `json:"location"`
	CustomDate string                `json:"customDate,omitempty"`
	SessionID  string                `json:"sessionId,omitempty"`
	FirstSave  bool                  `json:"firstSave,omitempty"`
}

// Save persists the working document. The payload mirrors the request
// exactly, so a retry after reauthentication is byte-identical.
func (c *Client) Save(ctx context.Context, documentID string, req editsession.SaveRequest) (editsession.Snapshot, error) {
	body := savePayload{
		Title:      req.Title,
		Content:    req.Content,
		Location:   req.Location,
		CustomDate: req.CustomDate,
		SessionID:  req.SessionID,
		FirstSave:  req.FirstSave,
	}
	var out struct {
		Page pagePayload `json:"page"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/pages/"+documentID, body, &out); err != nil {
		return editsession.Snapshot{}, err
	}
	return editsession.Snapshot{
		Title:      out.Page.Title,
		Content:    out.Page.Content,
		Location:   out.Page.Location,
		CustomDate: out.Page.CustomDate,
	}, nil
}

// LoadInitial hydrates a document. An id the server does not know yet
// hydrates as a blank document in new mode; it comes into existence on
// its first save.
func (c *Client) LoadInitial(ctx context.Context, documentID string) (editsession.Document, error) {
	var out struct {
		Page pagePayload `json:"page"`
	}
	err := c.do(ctx, http.MethodGet, "/api/pages/"+documentID, nil, &out)
	if err != nil {
		var st *StatusError
		if errors.As(err, &st) && st.StatusCode == http.StatusNotFound {
			return editsession.Document{
				ID:      documentID,
				Content: content.Empty(),
				IsNew:   true,
			}, nil
		}
		return editsession.Document{}, err
	}
	return editsession.Document{
		ID:         out.Page.ID,
		Title:      out.Page.Title,
		Content:    out.Page.Content,
		Location:   out.Page.Location,
		CustomDate: out.Page.CustomDate,
	}, nil
}

// Reauthenticate exchanges the refresh token for fresh credentials.
func (c *Client) Reauthenticate(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return &editsession.SaveError{Kind: editsession.KindAuthExpired, Message: "no refresh token"}
	}

	var out struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	body := map[string]string{"refreshToken": refresh}
	if err := c.doUnauthenticated(ctx, http.MethodPost, "/api/session/refresh", body, &out); err != nil {
		return err
	}
	c.SetTokens(out.Token, out.RefreshToken)
	return nil
}

// SignIn authenticates with email and password and installs the
// resulting tokens.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	var out struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.doUnauthenticated(ctx, http.MethodPost, "/api/auth/signin", body, &out); err != nil {
		return err
	}
	c.SetTokens(out.Token, out.RefreshToken)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	return c.roundTrip(ctx, method, path, token, body, out)
}

func (c *Client) doUnauthenticated(ctx context.Context, method, path string, body, out any) error {
	return c.roundTrip(ctx, method, path, "", body, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &editsession.SaveError{Kind: editsession.KindNetwork, Message: "Could not reach the server.", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &editsession.SaveError{Kind: editsession.KindAuthExpired, Message: "Session expired", Err: apiError(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := apiError(resp)
		return &editsession.SaveError{Kind: editsession.KindServerRejected, Message: err.Error(), Err: err}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &editsession.SaveError{Kind: editsession.KindNetwork, Message: "Malformed server response.", Err: err}
	}
	return nil
}

// StatusError is the decoded API error body, keeping the HTTP status.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func apiError(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &StatusError{StatusCode: resp.StatusCode, Code: body.Code, Message: body.Message}
}
