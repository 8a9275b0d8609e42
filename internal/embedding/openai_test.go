package embedding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/embedding"
)

type staticSecrets map[string]string

func (s staticSecrets) Secret(name string) (string, error) {
	if v, ok := s[name]; ok {
		return v, nil
	}
	return "", embedding.ErrSecretNotFound
}

var testKey = staticSecrets{embedding.SecretOpenAIAPIKey: "sk-test"}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body.Model)
		assert.Equal(t, "I love pizza", body.Input)

		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := embedding.NewOpenAI(embedding.OpenAIConfig{BaseURL: srv.URL, Secrets: testKey})
	assert.True(t, c.Available())
	assert.Equal(t, "text-embedding-3-small", c.Model())

	vec, err := c.Embed(context.Background(), "I love pizza")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIWithoutKeyIsOffline(t *testing.T) {
	c := embedding.NewOpenAI(embedding.OpenAIConfig{BaseURL: "http://127.0.0.1:1", Secrets: staticSecrets{}})
	assert.False(t, c.Available())

	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, embedding.ErrOffline)
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, embedding.ErrRateLimited},
		{"server error", http.StatusBadGateway, `oops`, embedding.ErrOffline},
		{"unauthorized", http.StatusUnauthorized, `{}`, embedding.ErrOffline},
		{"bad request", http.StatusBadRequest, `{}`, embedding.ErrMalformed},
		{"empty data", http.StatusOK, `{"data":[]}`, embedding.ErrMalformed},
		{"not json", http.StatusOK, `<html>`, embedding.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := embedding.NewOpenAI(embedding.OpenAIConfig{BaseURL: srv.URL, Secrets: testKey})
			_, err := c.Embed(context.Background(), "hello")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIBreakerMakesProviderUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := embedding.NewOpenAI(embedding.OpenAIConfig{BaseURL: srv.URL, Secrets: testKey})
	for i := 0; i < 3; i++ {
		_, err := c.Embed(context.Background(), "hello")
		require.ErrorIs(t, err, embedding.ErrOffline)
	}
	assert.False(t, c.Available())

	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, embedding.ErrOffline)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not reach the server")
}

func TestOpenAIMalformedDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := embedding.NewOpenAI(embedding.OpenAIConfig{BaseURL: srv.URL, Secrets: testKey})
	for i := 0; i < 5; i++ {
		_, err := c.Embed(context.Background(), "hello")
		require.ErrorIs(t, err, embedding.ErrMalformed)
	}
	assert.True(t, c.Available())
}
