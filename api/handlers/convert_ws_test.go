package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/testutil"
	"github.com/BaSui01/meshflow/testutil/fixtures"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🧪 WebSocket 转换测试
// =============================================================================

func dialConvertWS(t *testing.T, handler *ConvertHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleConvertWS))
	t.Cleanup(srv.Close)

	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readWSEvents(t *testing.T, conn *websocket.Conn) []ConvertWSEvent {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)

	var events []ConvertWSEvent
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return events
		}
		var event ConvertWSEvent
		require.NoError(t, json.Unmarshal(data, &event))
		events = append(events, event)
		if event.Stage == "done" || event.Stage == "error" {
			return events
		}
	}
}

func TestConvertHandler_HandleConvertWS(t *testing.T) {
	upstream := testutil.AssetServer(t, fixtures.TriangleGLB())
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())
	conn := dialConvertWS(t, handler)

	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)

	payload, err := json.Marshal(ConvertRequest{
		GLBURL:       upstream.URL + "/model.glb",
		OutputFormat: "stl",
	})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))

	events := readWSEvents(t, conn)
	require.NotEmpty(t, events)

	stages := make([]string, len(events))
	for i, event := range events {
		stages[i] = event.Stage
	}
	assert.Equal(t, []string{"queued", "fetching", "decoding", "exporting", "done"}, stages)

	final := events[len(events)-1]
	assert.NotEmpty(t, final.JobID)
	assert.Equal(t, "model/stl", final.ContentType)
	assert.Regexp(t, `^converted_model_\d+\.stl$`, final.Filename)
	assert.Equal(t, 1, final.TriangleCount)

	data, err := base64.StdEncoding.DecodeString(final.Data)
	require.NoError(t, err)
	assert.Len(t, data, 84+50)
	assert.Equal(t, final.SizeBytes, int64(len(data)))
}

func TestConvertHandler_HandleConvertWS_DecodeFailure(t *testing.T) {
	upstream := testutil.AssetServer(t, fixtures.CorruptGLB())
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())
	conn := dialConvertWS(t, handler)

	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)

	payload, err := json.Marshal(ConvertRequest{
		GLBURL:       upstream.URL + "/model.glb",
		OutputFormat: "obj",
	})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))

	events := readWSEvents(t, conn)
	require.NotEmpty(t, events)

	final := events[len(events)-1]
	assert.Equal(t, "error", final.Stage)
	assert.Equal(t, string(types.ErrDecodeError), final.Code)
	assert.Contains(t, final.Error, "invalid or corrupt GLB file")
	assert.Empty(t, final.Data)
}

func TestConvertHandler_HandleConvertWS_InvalidRequest(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())
	conn := dialConvertWS(t, handler)

	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"output_format":"stl"}`)))

	events := readWSEvents(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Stage)
	assert.Equal(t, string(types.ErrInvalidRequest), events[0].Code)
	assert.Contains(t, events[0].Error, "glb_url is required")
}

func TestConvertHandler_HandleConvertWS_UnsupportedFormat(t *testing.T) {
	handler := NewConvertHandler(newConvertService(t), nil, zap.NewNop())
	conn := dialConvertWS(t, handler)

	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)

	require.NoError(t, conn.Write(ctx, websocket.MessageText,
		[]byte(`{"glb_url":"http://example.com/a.glb","output_format":"dae"}`)))

	events := readWSEvents(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Stage)
	assert.Equal(t, string(types.ErrUnsupportedFormat), events[0].Code)
}
