package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// contentKey is the event content key the structured notification body is
// stored under, so Fetch can round-trip it without parsing rendered text.
const contentKey = "com.faultline.content"

// MatrixSink hosts incident notifications as editable messages in an
// operator room, using the Matrix client-server API.
type MatrixSink struct {
	homeserverURL string
	accessToken   string
	roomID        string
	httpClient    *http.Client
	limiter       *rate.Limiter
}

// MatrixConfig holds Matrix sink configuration
type MatrixConfig struct {
	HomeserverURL string
	AccessToken   string
	RoomID        string

	// RequestsPerSecond paces outbound API calls. Zero disables pacing.
	RequestsPerSecond float64
}

// matrixError is the Matrix API error response body
type matrixError struct {
	ErrCode string `json:"errcode"`
	Err     string `json:"error"`
}

// NewMatrixSink creates a Matrix-backed notification sink
func NewMatrixSink(cfg MatrixConfig) (*MatrixSink, error) {
	if cfg.HomeserverURL == "" {
		return nil, fmt.Errorf("homeserver URL is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("room ID is required")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &MatrixSink{
		homeserverURL: cfg.HomeserverURL,
		accessToken:   cfg.AccessToken,
		roomID:        cfg.RoomID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}, nil
}

// do performs one paced, authenticated API call and decodes the response
func (m *MatrixSink) do(ctx context.Context, method, path string, payload, out interface{}) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.homeserverURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr matrixError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.ErrCode != "" {
			return fmt.Errorf("matrix API error: %s: %s (status %d)", apiErr.ErrCode, apiErr.Err, resp.StatusCode)
		}
		return fmt.Errorf("matrix API error: status %d, response: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// sendPath returns the event-send path with a fresh transaction ID
func (m *MatrixSink) sendPath(eventType string) string {
	return fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(m.roomID), eventType, uuid.NewString())
}

// Create publishes a new notification message and returns its event ID
func (m *MatrixSink) Create(ctx context.Context, content Content) (string, error) {
	payload := map[string]interface{}{
		"msgtype":  "m.notice",
		"body":     content.PlainText(),
		contentKey: content,
	}

	var result struct {
		EventID string `json:"event_id"`
	}
	if err := m.do(ctx, http.MethodPut, m.sendPath("m.room.message"), payload, &result); err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}

	return result.EventID, nil
}

// Fetch returns the structured content of an existing notification
func (m *MatrixSink) Fetch(ctx context.Context, ref string) (Content, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/event/%s",
		url.PathEscape(m.roomID), url.PathEscape(ref))

	var event struct {
		Content map[string]json.RawMessage `json:"content"`
	}
	if err := m.do(ctx, http.MethodGet, path, nil, &event); err != nil {
		return Content{}, fmt.Errorf("fetch notification: %w", err)
	}

	raw, ok := event.Content[contentKey]
	if !ok {
		return Content{}, fmt.Errorf("fetch notification: event %s carries no structured content", ref)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("fetch notification: %w", err)
	}

	return content, nil
}

// Edit replaces the content of an existing notification via an m.replace
// relation.
func (m *MatrixSink) Edit(ctx context.Context, ref string, content Content) error {
	newContent := map[string]interface{}{
		"msgtype":  "m.notice",
		"body":     content.PlainText(),
		contentKey: content,
	}
	payload := map[string]interface{}{
		"msgtype":       "m.notice",
		"body":          "* " + content.PlainText(),
		contentKey:      content,
		"m.new_content": newContent,
		"m.relates_to": map[string]interface{}{
			"rel_type": "m.replace",
			"event_id": ref,
		},
	}

	if err := m.do(ctx, http.MethodPut, m.sendPath("m.room.message"), payload, nil); err != nil {
		return fmt.Errorf("edit notification: %w", err)
	}

	return nil
}

// Delete redacts a notification message
func (m *MatrixSink) Delete(ctx context.Context, ref string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(m.roomID), url.PathEscape(ref), uuid.NewString())

	payload := map[string]interface{}{
		"reason": "duplicate fault notification",
	}

	if err := m.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}

	return nil
}

// SendArtifact uploads a file and posts it to the target room
func (m *MatrixSink) SendArtifact(ctx context.Context, target string, data []byte, filename string) error {
	uri, err := m.upload(ctx, data, filename)
	if err != nil {
		return fmt.Errorf("send artifact: %w", err)
	}

	if target == "" {
		target = m.roomID
	}

	payload := map[string]interface{}{
		"msgtype":  "m.file",
		"body":     filename,
		"filename": filename,
		"url":      uri,
		"info": map[string]interface{}{
			"mimetype": "text/plain",
			"size":     len(data),
		},
	}

	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(target), uuid.NewString())
	if err := m.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("send artifact: %w", err)
	}

	return nil
}

// upload pushes raw bytes to the media repository and returns the mxc URI
func (m *MatrixSink) upload(ctx context.Context, data []byte, filename string) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	u := m.homeserverURL + "/_matrix/media/v3/upload?filename=" + url.QueryEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed: status %d, response: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		ContentURI string `json:"content_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	return result.ContentURI, nil
}
