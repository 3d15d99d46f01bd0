package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cadencehttp "github.com/aretw0/cadence/pkg/adapters/http"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoker_GetSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Paris", r.URL.Query().Get("city"))
		assert.Equal(t, "3", r.URL.Query().Get("days"))
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temp": 21.5}`))
	}))
	defer srv.Close()

	inv := cadencehttp.NewInvoker()
	resp, err := inv.Invoke(context.Background(), ports.ToolRequest{
		Method:  "get",
		URL:     srv.URL + "/weather",
		Params:  map[string]any{"city": "Paris", "days": 3, "tag": []any{"a", "b"}},
		Headers: map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, map[string]any{"temp": 21.5}, resp.Body)
	assert.JSONEq(t, `{"temp": 21.5}`, string(resp.Raw))
}

func TestInvoker_PostSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body["name"])
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	resp, err := cadencehttp.NewInvoker().Invoke(context.Background(), ports.ToolRequest{
		Method: "POST",
		URL:    srv.URL,
		Params: map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "created", resp.Body)
}

func TestInvoker_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := cadencehttp.NewInvoker().Invoke(context.Background(), ports.ToolRequest{URL: srv.URL})
	var se *cadencehttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestInvoker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	inv := cadencehttp.NewInvoker(cadencehttp.WithTimeout(50 * time.Millisecond))
	_, err := inv.Invoke(context.Background(), ports.ToolRequest{URL: srv.URL})
	assert.Error(t, err)
}

func TestInvoker_InvalidURL(t *testing.T) {
	_, err := cadencehttp.NewInvoker().Invoke(context.Background(), ports.ToolRequest{URL: "://bad"})
	assert.Error(t, err)
}
