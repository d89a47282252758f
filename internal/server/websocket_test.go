package server_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/pkg/api"
)

const wsReadTimeout = 2 * time.Second

type testWebSocketEnv struct {
	*testServerEnv
	HTTP *httptest.Server
	Conn *websocket.Conn
}

func testWebSocket(t *testing.T) *testWebSocketEnv {
	t.Helper()
	env := testServer(t)
	srv := httptest.NewServer(env.Router)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/engine/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return &testWebSocketEnv{testServerEnv: env, HTTP: srv, Conn: conn}
}

func (e *testWebSocketEnv) Cleanup() {
	_ = e.Conn.Close()
	e.Server.CloseWebSockets()
	e.HTTP.Close()
	e.testServerEnv.Cleanup()
}

func (e *testWebSocketEnv) subscribe(t *testing.T, sub api.ClientSubscription) {
	t.Helper()
	require.NoError(t, e.Conn.WriteJSON(api.SubscribeRequest{
		Type: "subscribe",
		Data: sub,
	}))

	var ack api.SubscribedResult
	_ = e.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	require.NoError(t, e.Conn.ReadJSON(&ack))
	require.Equal(t, "subscribed", ack.Type)
}

func TestSocketSilentUntilSubscribed(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()

	env.EventHub.Publish(&api.ExecutionEvent{Type: api.EventStepStarted})

	_ = env.Conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := env.Conn.ReadMessage()
	assert.Error(t, err)
}

func TestSocketStreamsExecutionEvents(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()
	require.NoError(t, env.Engine.RegisterWorkflow(sumWorkflow("total")))

	env.subscribe(t, api.ClientSubscription{
		EventTypes: []api.EventType{
			api.EventExecutionStarted, api.EventExecutionCompleted,
		},
	})

	w := env.do("POST", "/engine/workflow/total/execute",
		api.Args{"values": []any{2, 3}},
	)
	require.Equal(t, 200, w.Code)
	res := decode[api.WorkflowResponse](t, w)

	var types []api.EventType
	for range 2 {
		var ev api.ExecutionEvent
		_ = env.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		require.NoError(t, env.Conn.ReadJSON(&ev))
		assert.Equal(t, res.ExecutionID, ev.ExecutionID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []api.EventType{
		api.EventExecutionStarted, api.EventExecutionCompleted,
	}, types)
}

func TestSocketSubscribeToExecution(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()
	require.NoError(t, env.Engine.RegisterWorkflow(sumWorkflow("total")))

	w := env.do("POST", "/engine/workflow/total/execute",
		api.Args{"values": []any{1}},
	)
	res := decode[api.WorkflowResponse](t, w)

	require.NoError(t, env.Conn.WriteJSON(api.SubscribeRequest{
		Type: "subscribe",
		Data: api.ClientSubscription{ExecutionID: res.ExecutionID},
	}))

	var ack api.SubscribedResult
	_ = env.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	require.NoError(t, env.Conn.ReadJSON(&ack))
	assert.Equal(t, res.ExecutionID, ack.ID)
	require.NotNil(t, ack.Execution)
	assert.Equal(t, api.StatusCompleted, ack.Execution.Status)

	env.EventHub.Publish(&api.ExecutionEvent{
		Type: api.EventStepStarted, ExecutionID: "other",
	})
	env.EventHub.Publish(&api.ExecutionEvent{
		Type: api.EventStepStarted, ExecutionID: res.ExecutionID,
	})

	var ev api.ExecutionEvent
	_ = env.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	require.NoError(t, env.Conn.ReadJSON(&ev))
	assert.Equal(t, res.ExecutionID, ev.ExecutionID)
}

func TestSocketIgnoresInvalidMessages(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()

	require.NoError(t, env.Conn.WriteMessage(
		websocket.TextMessage, []byte("not json"),
	))
	require.NoError(t, env.Conn.WriteJSON(map[string]string{"type": "hello"}))

	env.subscribe(t, api.ClientSubscription{})
	env.EventHub.Publish(&api.ExecutionEvent{
		Type: api.EventStepStarted, ExecutionID: "ex-1",
	})

	var ev api.ExecutionEvent
	_ = env.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	require.NoError(t, env.Conn.ReadJSON(&ev))
	assert.Equal(t, api.ExecutionID("ex-1"), ev.ExecutionID)
}

func TestCloseWebSockets(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()

	env.subscribe(t, api.ClientSubscription{})
	env.Server.CloseWebSockets()

	_ = env.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	_, _, err := env.Conn.ReadMessage()
	assert.Error(t, err)
}
