package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/auth-service/users"
)

const (
	DefaultPostmarkBaseURL = "https://api.postmarkapp.com"
	defaultTimeout         = 10 * time.Second
	messageStream          = "outbound"
	serverTokenHeader      = "X-Postmark-Server-Token"
	maxErrorBody           = 4 << 10
)

var _ Client = (*PostmarkClient)(nil)

type postmarkMessage struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// PostmarkClient sends email through the Postmark HTTP API.
type PostmarkClient struct {
	BaseURL     string
	Sender      users.Email
	ServerToken string
	HTTPClient  *http.Client
}

// NewPostmarkClient returns a client for the given sender. An empty baseURL uses the public API
// and a zero timeout falls back to 10s.
func NewPostmarkClient(baseURL string, sender users.Email, serverToken string, timeout time.Duration) *PostmarkClient {
	if baseURL == "" {
		baseURL = DefaultPostmarkBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PostmarkClient{
		BaseURL:     baseURL,
		Sender:      sender,
		ServerToken: serverToken,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

// SendEmail posts a single message. The content is never logged.
func (c *PostmarkClient) SendEmail(ctx context.Context, recipient users.Email, subject, content string) error {
	if c.ServerToken == "" {
		return errors.Wrap(ErrDeliveryFailed, "postmark server token not configured")
	}

	raw, err := json.Marshal(postmarkMessage{
		From:          c.Sender.String(),
		To:            recipient.String(),
		Subject:       subject,
		HtmlBody:      content,
		TextBody:      content,
		MessageStream: messageStream,
	})
	if err != nil {
		return errors.Wrap(err, "[PostmarkClient.SendEmail] marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/email", bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "[PostmarkClient.SendEmail] NewRequest")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(serverTokenHeader, c.ServerToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(ErrDeliveryFailed, "postmark request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return errors.Wrap(ErrDeliveryFailed, fmt.Sprintf("postmark status=%d body=%s", resp.StatusCode, string(body)))
	}

	// Postmark reports some rejections with a 200 and a non-zero ErrorCode
	var pr postmarkResponse
	if err := json.Unmarshal(body, &pr); err == nil && pr.ErrorCode != 0 {
		return errors.Wrap(ErrDeliveryFailed, fmt.Sprintf("postmark error_code=%d message=%s", pr.ErrorCode, pr.Message))
	}
	return nil
}
