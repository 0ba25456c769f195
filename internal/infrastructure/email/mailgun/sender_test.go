package mailgun

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsign/quillsign/internal/domain/services"
)

func TestSender_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mg.example.com/messages.mime", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "key-secret", pass)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "alice@example.com", r.FormValue("to"))

		message, _, err := r.FormFile("message")
		require.NoError(t, err)
		content, _ := io.ReadAll(message)
		assert.Contains(t, string(content), "Subject: Sign me")
		assert.Contains(t, string(content), "To: alice@example.com")
		assert.Contains(t, string(content), "http://localhost:3000?auth=abc")

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(server.URL, 5*time.Second)
	err := sender.Send(context.Background(), services.EmailMessage{
		Server:  "mg.example.com",
		APIKey:  "key-secret",
		Sender:  "noreply@example.com",
		ReplyTo: "noreply@example.com",
		To:      " alice@example.com ",
		Subject: "Sign me",
		Body:    "\nhttp://localhost:3000?auth=abc\n",
	})
	require.NoError(t, err)
}

func TestSender_Send_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "bad key")
	}))
	defer server.Close()

	sender := NewSender(server.URL, 5*time.Second)
	err := sender.Send(context.Background(), services.EmailMessage{
		Server: "mg.example.com",
		APIKey: "wrong",
		To:     "alice@example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSender_Send_Unconfigured(t *testing.T) {
	sender := NewSender("https://api.mailgun.net/v3", 5*time.Second)
	err := sender.Send(context.Background(), services.EmailMessage{To: "alice@example.com"})
	assert.Error(t, err)
}

func TestBuildMIME_SkipsEmptyHeaders(t *testing.T) {
	mime := string(BuildMIME(services.EmailMessage{
		To:      "bob@example.com",
		Subject: "Hello",
		Body:    "body text",
	}))
	assert.Contains(t, mime, "Subject: Hello")
	assert.NotContains(t, mime, "Reply-To")
	assert.NotContains(t, mime, "From:")
	assert.Contains(t, mime, "\r\n\r\nbody text")
}
