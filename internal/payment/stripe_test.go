package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateIntentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		require.Equal(t, "2500", r.PostForm.Get("amount"))
		require.Equal(t, "hkd", r.PostForm.Get("currency"))
		require.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_1","client_secret":"pi_1_secret_x"}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("sk_test_123", "hkd", srv.URL)
	secret, err := c.CreateIntent(context.Background(), 2500)
	require.NoError(t, err)
	require.Equal(t, "pi_1_secret_x", secret)
}

func TestCreateIntentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("sk_test_123", "hkd", srv.URL)
	_, err := c.CreateIntent(context.Background(), 2500)
	require.Error(t, err)
	require.Contains(t, err.Error(), "declined")
}

func TestCreateIntentMissingSecretInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("sk_test_123", "hkd", srv.URL)
	_, err := c.CreateIntent(context.Background(), 100)
	require.Error(t, err)
}

func TestCreateIntentNotConfigured(t *testing.T) {
	c := NewClient("", "hkd")
	_, err := c.CreateIntent(context.Background(), 100)
	require.ErrorIs(t, err, ErrNotConfigured)
}
