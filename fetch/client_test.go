package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/testutil"
	"github.com/BaSui01/meshflow/types"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Retry == nil {
		cfg.Retry = &RetryPolicy{
			MaxRetries:   2,
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2.0,
		}
	}
	return NewClient(cfg, zap.NewNop())
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://assets.example.com/model.glb", false},
		{"http", "http://assets.example.com/model.glb", false},
		{"file scheme", "file:///etc/passwd", true},
		{"ftp scheme", "ftp://example.com/model.glb", true},
		{"relative", "model.glb", true},
		{"empty", "", true},
		{"no host", "https:///model.glb", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	payload := []byte("glb-bytes-here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write(payload)
	}))
	defer srv.Close()

	client := newTestClient(t, Config{})
	data, err := client.Fetch(context.Background(), srv.URL+"/model.glb")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestClient_Fetch_UpstreamClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, Config{})
	_, err := client.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 502, typed.HTTPStatus)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestClient_Fetch_ServerErrorRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{})
	data, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), data)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(t, Config{
		Timeout: 30 * time.Millisecond,
		Retry:   &RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond},
	})
	_, err := client.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	assert.Equal(t, types.ErrFetchTimeout, types.GetErrorCode(err))
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 504, typed.HTTPStatus)
}

func TestClient_Fetch_SizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{MaxBytes: 1024})
	_, err := client.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	assert.Equal(t, types.ErrAssetTooLarge, types.GetErrorCode(err))
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 413, typed.HTTPStatus)
}

func TestClient_Fetch_ExactCapIsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{MaxBytes: 1024})
	data, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
}

func TestClient_Fetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 立刻关闭，制造连接失败

	client := newTestClient(t, Config{Retry: &RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond}})
	_, err := client.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestClient_Fetch_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("never delivered"))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{})
	_, err := client.Fetch(testutil.CancelledContext(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Fetch_InvalidURLShortCircuits(t *testing.T) {
	client := newTestClient(t, Config{})
	_, err := client.Fetch(context.Background(), "ftp://example.com/a.glb")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}
