package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aria/internal/assistant/ports"
	"aria/internal/httpclient"
	"aria/internal/shared/logging"
)

const defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailClient provides typed access to the user's Gmail mailbox.
type GmailClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// GmailOption configures a GmailClient.
type GmailOption func(*GmailClient)

// WithGmailBaseURL overrides the API endpoint, mainly for tests.
func WithGmailBaseURL(baseURL string) GmailOption {
	return func(c *GmailClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithGmailHTTPClient overrides the outbound HTTP client.
func WithGmailHTTPClient(client *http.Client) GmailOption {
	return func(c *GmailClient) { c.httpClient = client }
}

// NewGmailClient constructs an email provider.
func NewGmailClient(logger logging.Logger, opts ...GmailOption) *GmailClient {
	c := &GmailClient{
		baseURL:    defaultGmailBaseURL,
		httpClient: httpclient.New(30 * time.Second),
		logger:     logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GmailClient) SearchMessages(ctx context.Context, token string, query string, limit int) ([]ports.EmailMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	values := url.Values{}
	if query != "" {
		values.Set("q", query)
	}
	values.Set("maxResults", strconv.Itoa(limit))

	var listResp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	endpoint := fmt.Sprintf("%s/users/me/messages?%s", c.baseURL, values.Encode())
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, &listResp); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	messages := make([]ports.EmailMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		msg, err := c.getMessage(ctx, token, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch message %s: %w", ref.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *GmailClient) getMessage(ctx context.Context, token, messageID string) (ports.EmailMessage, error) {
	var resp struct {
		ID           string   `json:"id"`
		Snippet      string   `json:"snippet"`
		LabelIDs     []string `json:"labelIds"`
		InternalDate string   `json:"internalDate"`
		Payload      struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
		} `json:"payload"`
	}
	endpoint := fmt.Sprintf("%s/users/me/messages/%s?format=metadata", c.baseURL, url.PathEscape(messageID))
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, &resp); err != nil {
		return ports.EmailMessage{}, err
	}

	msg := ports.EmailMessage{ID: resp.ID, Snippet: resp.Snippet}
	for _, h := range resp.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "subject":
			msg.Subject = h.Value
		case "to":
			msg.To = splitAddressList(h.Value)
		}
	}
	if ms, err := strconv.ParseInt(resp.InternalDate, 10, 64); err == nil {
		msg.Date = time.UnixMilli(ms)
	}
	for _, label := range resp.LabelIDs {
		if label == "UNREAD" {
			msg.Unread = true
		}
	}
	return msg, nil
}

func (c *GmailClient) SendMessage(ctx context.Context, token string, draft ports.EmailDraft) (string, error) {
	if len(draft.To) == 0 {
		return "", fmt.Errorf("draft has no recipients")
	}

	raw := buildRFC2822(draft)
	body := map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
	}

	var resp struct {
		ID string `json:"id"`
	}
	endpoint := c.baseURL + "/users/me/messages/send"
	if err := c.do(ctx, token, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

func buildRFC2822(draft ports.EmailDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(draft.To, ", "))
	if len(draft.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(draft.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", draft.Subject)
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(draft.Body)
	return b.String()
}

func splitAddressList(value string) []string {
	parsed, err := mail.ParseAddressList(value)
	if err != nil {
		// Fall back to a comma split for non-conforming headers.
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	out := make([]string, 0, len(parsed))
	for _, addr := range parsed {
		out = append(out, addr.Address)
	}
	return out
}

func (c *GmailClient) do(ctx context.Context, token, method, endpoint string, body, out any) error {
	return doJSON(ctx, c.httpClient, c.logger, token, method, endpoint, body, out)
}
