package email_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/auth-service/email"
	"github.com/jrsteele09/auth-service/users"
)

const (
	sender    = users.Email("no-reply@example.com")
	recipient = users.Email("u@example.com")
)

func TestPostmarkClient_SendEmail(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/email", r.URL.Path)
		assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ErrorCode":0,"Message":"OK"}`))
	}))
	defer srv.Close()

	c := email.NewPostmarkClient(srv.URL, sender, "server-token", time.Second)
	require.NoError(t, c.SendEmail(context.Background(), recipient, email.TwoFactorSubject, "123456"))

	require.Equal(t, "no-reply@example.com", got["From"])
	require.Equal(t, "u@example.com", got["To"])
	require.Equal(t, "2FA Code", got["Subject"])
	require.Equal(t, "123456", got["TextBody"])
	require.Equal(t, "outbound", got["MessageStream"])
}

func TestPostmarkClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
			},
		},
		{
			name: "error code in 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ErrorCode":406,"Message":"Inactive recipient"}`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := email.NewPostmarkClient(srv.URL, sender, "server-token", 50*time.Millisecond)
			err := c.SendEmail(context.Background(), recipient, email.TwoFactorSubject, "123456")
			require.ErrorIs(t, err, email.ErrDeliveryFailed)
		})
	}
}

func TestPostmarkClient_MissingToken(t *testing.T) {
	c := email.NewPostmarkClient("http://127.0.0.1:1", sender, "", time.Second)
	err := c.SendEmail(context.Background(), recipient, email.TwoFactorSubject, "123456")
	require.ErrorIs(t, err, email.ErrDeliveryFailed)
}

func TestLogClient_SendEmail(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	require.NoError(t, email.NewLogClient().SendEmail(ctx, recipient, email.TwoFactorSubject, "123456"))
	require.Contains(t, buf.String(), "u@example.com")
	require.Contains(t, buf.String(), "2FA Code")
}
