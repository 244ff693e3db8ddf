package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aria/internal/assistant/ports"
	"aria/internal/shared/logging"
)

func TestSearchMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/me/messages":
			require.Equal(t, "from:alice", r.URL.Query().Get("q"))
			require.Equal(t, "5", r.URL.Query().Get("maxResults"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"messages": []any{map[string]any{"id": "m1"}},
			})
		case strings.HasPrefix(r.URL.Path, "/users/me/messages/m1"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":           "m1",
				"snippet":      "quarterly numbers attached",
				"labelIds":     []string{"INBOX", "UNREAD"},
				"internalDate": "1756500000000",
				"payload": map[string]any{
					"headers": []any{
						map[string]any{"name": "From", "value": "alice@example.com"},
						map[string]any{"name": "Subject", "value": "Q3 numbers"},
						map[string]any{"name": "To", "value": "me@example.com, bob@example.com"},
					},
				},
			})
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewGmailClient(logging.Nop(), WithGmailBaseURL(server.URL))
	messages, err := client.SearchMessages(context.Background(), "tok", "from:alice", 5)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "alice@example.com", msg.From)
	assert.Equal(t, "Q3 numbers", msg.Subject)
	assert.Equal(t, []string{"me@example.com", "bob@example.com"}, msg.To)
	assert.True(t, msg.Unread)
	assert.False(t, msg.Date.IsZero())
}

func TestSendMessageEncodesRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me/messages/send", r.URL.Path)
		var body struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		raw, err := base64.URLEncoding.DecodeString(body.Raw)
		require.NoError(t, err)
		text := string(raw)
		assert.Contains(t, text, "To: bob@example.com")
		assert.Contains(t, text, "Subject: lunch?")
		assert.Contains(t, text, "noon works for me")

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sent-1"})
	}))
	defer server.Close()

	client := NewGmailClient(logging.Nop(), WithGmailBaseURL(server.URL))
	msgID, err := client.SendMessage(context.Background(), "tok", ports.EmailDraft{
		To:      []string{"bob@example.com"},
		Subject: "lunch?",
		Body:    "noon works for me",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", msgID)
}

func TestSendMessageRequiresRecipients(t *testing.T) {
	client := NewGmailClient(logging.Nop())
	_, err := client.SendMessage(context.Background(), "tok", ports.EmailDraft{Subject: "x"})
	require.Error(t, err)
}

func TestSplitAddressListFallback(t *testing.T) {
	got := splitAddressList("not-an-address,, other thing ")
	assert.Equal(t, []string{"not-an-address", "other thing"}, got)
}
