// Package push – Firebase Cloud Messaging HTTP v1 client.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// fcmScope is the OAuth scope for the FCM v1 send endpoint.
	fcmScope = "https://www.googleapis.com/auth/firebase.messaging"
	// iidEndpoint is the instance-id API used for topic subscription.
	iidEndpoint = "https://iid.googleapis.com/iid/v1:batchAdd"
)

// FCMClient implements Provider against the FCM HTTP v1 API using a service
// account credential. The zero value is not usable; construct with
// NewFCMClient.
type FCMClient struct {
	// ProjectID is the Firebase project the messages are sent under.
	ProjectID string
	// Endpoint overrides the v1 send URL (tests point it at httptest).
	Endpoint string
	// SubscribeEndpoint overrides the topic-subscription URL.
	SubscribeEndpoint string
	// HTTPClient is the transport; a 30-second-timeout client when nil.
	HTTPClient *http.Client
	// TokenSource mints OAuth bearer tokens for each request.
	TokenSource oauth2.TokenSource
}

// NewFCMClient builds a client from a service-account JSON credential.
func NewFCMClient(ctx context.Context, credentialsJSON []byte) (*FCMClient, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("push: parse service account: %w", err)
	}
	if creds.ProjectID == "" {
		return nil, fmt.Errorf("push: service account has no project_id")
	}
	return &FCMClient{
		ProjectID:   creds.ProjectID,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		TokenSource: creds.TokenSource,
	}, nil
}

// fcmMessage mirrors the v1 wire format for the fields this backend sets.
type fcmMessage struct {
	ValidateOnly bool `json:"validate_only,omitempty"`
	Message      struct {
		Token        string            `json:"token,omitempty"`
		Topic        string            `json:"topic,omitempty"`
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
		Android      struct {
			Priority     string `json:"priority"`
			CollapseKey  string `json:"collapse_key,omitempty"`
			TTL          string `json:"ttl,omitempty"`
			Notification struct {
				Priority string `json:"priority"`
				Sound    string `json:"default_sound,omitempty"`
			} `json:"notification"`
		} `json:"android"`
		APNs struct {
			Headers map[string]string `json:"headers,omitempty"`
			Payload struct {
				APS struct {
					Sound string `json:"sound"`
					Badge int    `json:"badge"`
				} `json:"aps"`
			} `json:"payload"`
		} `json:"apns"`
	} `json:"message"`
}

func buildFCMMessage(msg Message) *fcmMessage {
	m := &fcmMessage{ValidateOnly: msg.DryRun}
	m.Message.Notification = map[string]string{"title": msg.Title, "body": msg.Body}
	m.Message.Data = msg.Data
	m.Message.Android.Priority = "high"
	m.Message.Android.Notification.Priority = "high"
	m.Message.Android.Notification.Sound = "true"
	if msg.CollapseKey != "" {
		m.Message.Android.CollapseKey = msg.CollapseKey
		m.Message.APNs.Headers = map[string]string{"apns-collapse-id": msg.CollapseKey}
	}
	if msg.TTL > 0 {
		m.Message.Android.TTL = strconv.FormatInt(int64(msg.TTL.Seconds()), 10) + "s"
	}
	m.Message.APNs.Payload.APS.Sound = "default"
	m.Message.APNs.Payload.APS.Badge = 1
	return m
}

// SendToToken delivers msg to one device. A 404 or an UNREGISTERED error code
// from the provider is reported as ErrUnregistered; everything else surfaces
// as a transient error.
func (c *FCMClient) SendToToken(ctx context.Context, token string, msg Message) error {
	m := buildFCMMessage(msg)
	m.Message.Token = token
	return c.send(ctx, m)
}

// SendToTopic broadcasts msg through the provider's topic mechanism.
func (c *FCMClient) SendToTopic(ctx context.Context, topic string, msg Message) error {
	m := buildFCMMessage(msg)
	m.Message.Topic = topic
	return c.send(ctx, m)
}

// SubscribeToTopic subscribes token to topic via the instance-id batch API.
func (c *FCMClient) SubscribeToTopic(ctx context.Context, token, topic string) error {
	endpoint := c.SubscribeEndpoint
	if endpoint == "" {
		endpoint = iidEndpoint
	}
	payload, err := json.Marshal(map[string]any{
		"to":                  "/topics/" + topic,
		"registration_tokens": []string{token},
	})
	if err != nil {
		return err
	}
	return c.post(ctx, endpoint, payload, "")
}

func (c *FCMClient) send(ctx context.Context, m *fcmMessage) error {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = "https://fcm.googleapis.com/v1/projects/" + c.ProjectID + "/messages:send"
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.post(ctx, endpoint, payload, m.Message.Token)
}

func (c *FCMClient) post(ctx context.Context, endpoint string, payload []byte, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.TokenSource != nil {
		tok, err := c.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("push: mint access token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if classifyUnregistered(resp.StatusCode, body) {
		return fmt.Errorf("%w: token %s", ErrUnregistered, truncateToken(token))
	}
	return fmt.Errorf("push: provider returned %d: %s", resp.StatusCode, body)
}

// classifyUnregistered distinguishes "recipient permanently invalid" from
// transient provider failures. FCM reports dead tokens as HTTP 404 with the
// UNREGISTERED error code.
func classifyUnregistered(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}
	s := string(body)
	return strings.Contains(s, "UNREGISTERED") || strings.Contains(s, "NOT_FOUND")
}

// truncateToken shortens a token for log/error output.
func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "…"
}
