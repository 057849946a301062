package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/convert"
	"github.com/BaSui01/meshflow/fetch"
	"github.com/BaSui01/meshflow/testutil"
	"github.com/BaSui01/meshflow/testutil/fixtures"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

func newConvertService(t *testing.T) *convert.Service {
	t.Helper()
	fetcher := fetch.NewClient(fetch.Config{
		Timeout: 5 * time.Second,
		Retry:   &fetch.RetryPolicy{},
	}, zap.NewNop())

	svc, err := convert.NewService(convert.Options{
		Config:  config.ConvertConfig{Workers: 2, MaxBatch: 8},
		Fetcher: fetcher,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(testutil.MustJSON(payload)))
	r.Header.Set("Content-Type", "application/json")
	handler(w, r)
	return w
}

func decodeErrorResponse(t *testing.T, w *httptest.ResponseRecorder) *Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return &resp
}

// =============================================================================
// 🧪 ConvertHandler 测试
// =============================================================================

func TestConvertHandler_HandleConvert_STL(t *testing.T) {
	upstream := testutil.AssetServer(t, fixtures.TriangleGLB())
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvert, "/convert", ConvertRequest{
		GLBURL:       upstream.URL + "/model.glb",
		OutputFormat: "stl",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "model/stl", w.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="converted_model_\d+\.stl"$`,
		w.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, w.Header().Get("X-Job-ID"))
	assert.Equal(t, 84+50, w.Body.Len())
}

func TestConvertHandler_HandleConvert_CaseInsensitiveFormat(t *testing.T) {
	upstream := testutil.AssetServer(t, fixtures.TriangleGLB())
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvert, "/convert", ConvertRequest{
		GLBURL:       upstream.URL + "/model.glb",
		OutputFormat: "OBJ",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "v ")
}

func TestConvertHandler_HandleConvert_MissingURL(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvert, "/convert", ConvertRequest{
		OutputFormat: "stl",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeErrorResponse(t, w)
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "glb_url is required")
}

func TestConvertHandler_HandleConvert_MissingFormat(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvert, "/convert", ConvertRequest{
		GLBURL: "http://example.com/model.glb",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeErrorResponse(t, w)
	assert.Contains(t, resp.Error.Message, "output_format is required")
}

func TestConvertHandler_HandleConvert_UnsupportedFormat(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvert, "/convert", ConvertRequest{
		GLBURL:       "http://example.com/model.glb",
		OutputFormat: "fbx",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeErrorResponse(t, w)
	assert.Equal(t, string(types.ErrUnsupportedFormat), resp.Error.Code)
}

func TestConvertHandler_HandleConvert_CorruptGLB(t *testing.T) {
	upstream := testutil.AssetServer(t, fixtures.CorruptGLB())
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvert, "/convert", ConvertRequest{
		GLBURL:       upstream.URL + "/model.glb",
		OutputFormat: "stl",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeErrorResponse(t, w)
	assert.Equal(t, string(types.ErrDecodeError), resp.Error.Code)
}

func TestConvertHandler_HandleConvert_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(upstream.Close)

	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvert, "/convert", ConvertRequest{
		GLBURL:       upstream.URL + "/model.glb",
		OutputFormat: "stl",
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeErrorResponse(t, w)
	assert.Equal(t, string(types.ErrUpstreamError), resp.Error.Code)
}

func TestConvertHandler_HandleConvert_InvalidBody(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/convert", bytes.NewBufferString(`{"glb_url":`))
	handler.HandleConvert(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConvertHandler_HandleConvertBatch(t *testing.T) {
	good := testutil.AssetServer(t, fixtures.TriangleGLB())
	bad := testutil.AssetServer(t, fixtures.CorruptGLB())
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvertBatch, "/api/v1/convert/batch", ConvertBatchRequest{
		Items: []ConvertRequest{
			{GLBURL: good.URL + "/a.glb", OutputFormat: "stl"},
			{GLBURL: bad.URL + "/b.glb", OutputFormat: "obj"},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var items []ConvertBatchItem
	require.NoError(t, json.Unmarshal(raw, &items))
	require.Len(t, items, 2)

	assert.True(t, items[0].Success)
	assert.Equal(t, "model/stl", items[0].ContentType)
	assert.Equal(t, 1, items[0].TriangleCount)
	assert.NotEmpty(t, items[0].JobID)

	assert.False(t, items[1].Success)
	require.NotNil(t, items[1].Error)
	assert.Equal(t, string(types.ErrDecodeError), items[1].Error.Code)
}

func TestConvertHandler_HandleConvertBatch_InvalidItem(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	w := postJSON(t, handler.HandleConvertBatch, "/api/v1/convert/batch", ConvertBatchRequest{
		Items: []ConvertRequest{
			{GLBURL: "http://example.com/a.glb", OutputFormat: "stl"},
			{GLBURL: "http://example.com/b.glb", OutputFormat: "step"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeErrorResponse(t, w)
	assert.Equal(t, string(types.ErrUnsupportedFormat), resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "items[1]")
}

func TestConvertHandler_HandleConvertBatch_TooLarge(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())

	items := make([]ConvertRequest, 9)
	for i := range items {
		items[i] = ConvertRequest{GLBURL: "http://example.com/a.glb", OutputFormat: "stl"}
	}

	w := postJSON(t, handler.HandleConvertBatch, "/api/v1/convert/batch", ConvertBatchRequest{Items: items})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeErrorResponse(t, w)
	assert.Contains(t, resp.Error.Message, "exceeds limit")
}
