package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/fedi-relay/internal/relay"
)

func TestClientPost(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient()
	err := client.Post(context.Background(), srv.URL, map[string]string{"content": "hello"})
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, userAgent, gotHeaders.Get("User-Agent"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "hello", payload["content"])
}

func TestClientPostFailureCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient()
	err := client.Post(context.Background(), srv.URL, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid Webhook Token")
}

func TestSenderUnknownKind(t *testing.T) {
	sender := NewSender("home.example", testLogger())
	endpoint := relay.Endpoint{Kind: relay.Kind("carrier-pigeon"), URL: "https://hooks.example/1"}
	err := sender.Deliver(context.Background(), endpoint, makeStatus("1", "alice"))
	assert.Error(t, err)
}
