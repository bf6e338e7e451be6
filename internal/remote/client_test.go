package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewHTTPClient(Config{Domain: srv.URL, AccessToken: "shpat_test", APIVersion: "2024-04"}, srv.Client(), nil)
	require.NoError(t, err)
	client.sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

func TestHTTPClientSendsTokenAndDecodesData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-04/graphql.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		var body graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body.Variables["first"])
		_, _ = w.Write([]byte(`{"data":{"shop":{"name":"demo"}}}`))
	})

	var out struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	err := client.Request(context.Background(), `{ shop { name } }`, map[string]any{"first": 5}, &out)
	require.NoError(t, err)
	require.Equal(t, "demo", out.Shop.Name)
}

func TestHTTPClientClassifiesNon2xxAsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":"[API] Invalid API key or access token"}`))
	})

	err := client.Request(context.Background(), `{ shop { name } }`, nil, nil)
	require.Error(t, err)
	require.True(t, IsTransport(err))
	require.False(t, IsApplication(err))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.StatusUnauthorized, te.StatusCode)
	require.Contains(t, err.Error(), "Invalid API key")
}

func TestHTTPClientClassifiesErrorsArrayAsApplication(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Field 'bogus' doesn't exist on type 'Shop'"}]}`))
	})

	err := client.Request(context.Background(), `{ shop { bogus } }`, nil, nil)
	require.True(t, IsApplication(err))
	require.False(t, IsTransport(err))
	require.False(t, errors.Is(err, ErrThrottled))
}

func TestHTTPClientRetriesThrottledResponses(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}],
				"extensions":{"cost":{"requestedQueryCost":10,"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":0,"restoreRate":50}}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})
	var waits []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	var out map[string]bool
	require.NoError(t, client.Request(context.Background(), `{ ok }`, nil, &out))
	require.True(t, out["ok"])
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, []time.Duration{time.Second}, waits)
}

func TestHTTPClientPausesWhenBucketLow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{},"extensions":{"cost":{"requestedQueryCost":5,"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":10,"restoreRate":50}}}}`))
	})
	var waited time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		waited = d
		return nil
	}

	require.NoError(t, client.Request(context.Background(), `{ ok }`, nil, nil))
	require.Equal(t, 800*time.Millisecond, waited)
}

func TestHTTPClientRequiresCredentials(t *testing.T) {
	_, err := NewHTTPClient(Config{Domain: "demo.myshopify.com"}, nil, nil)
	require.Error(t, err)
}

func TestDecimalAcceptsStringsAndNumbers(t *testing.T) {
	var v struct {
		A Decimal  `json:"a"`
		B Decimal  `json:"b"`
		C *Decimal `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"19.90","b":3,"c":null}`), &v))
	require.InDelta(t, 19.90, v.A.Float64(), 0.0001)
	require.InDelta(t, 3, v.B.Float64(), 0.0001)
	require.Nil(t, v.C)
}
