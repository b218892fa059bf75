package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatUnique/keyguard-pro/internal/auth"
	"github.com/chatUnique/keyguard-pro/internal/domain"
)

func setupHub(t *testing.T) (*Hub, *auth.TokenManager, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", "keyguard-pro", time.Hour)
	hub := NewHub(nil, tokens, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/v1/batches/:id/ws", HandleWebSocket(hub))
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, tokens, server
}

func wsURL(server *httptest.Server, jobID, token string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/batches/" + jobID + "/ws?token=" + token
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_Subscription(t *testing.T) {
	hub, tokens, server := setupHub(t)

	token, _, err := tokens.Issue("job-1")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "job-1", token), nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeSubscribed, msg.Type)
	assert.Equal(t, "job-1", msg.JobID)
	assert.Equal(t, 1, hub.SubscriberCount("job-1"))

	t.Run("推送进度", func(t *testing.T) {
		hub.NotifyProgress("job-1", domain.BatchStatistics{Total: 4, Completed: 2, Progress: 50})

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeProgress, msg.Type)
		var stats domain.BatchStatistics
		require.NoError(t, json.Unmarshal(msg.Data, &stats))
		assert.Equal(t, 2, stats.Completed)
		assert.Equal(t, 50.0, stats.Progress)
	})

	t.Run("条目不含密钥", func(t *testing.T) {
		item := domain.NewWorkItem(domain.ProviderOpenAI, "sk-should-never-leave-1234")
		hub.NotifyItem("job-1", item)

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeItem, msg.Type)
		assert.NotContains(t, string(msg.Data), "sk-should-never-leave-1234")
	})

	t.Run("其他任务的消息不会收到", func(t *testing.T) {
		hub.NotifyProgress("job-2", domain.BatchStatistics{Total: 1})
		hub.NotifyComplete("job-1", &domain.JobSnapshot{ID: "job-1", State: domain.JobCompleted})

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeComplete, msg.Type)
		assert.Equal(t, "job-1", msg.JobID)
	})

	t.Run("应答ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypePong, msg.Type)
	})

	t.Run("订阅其他任务需要对应令牌", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, JobID: "job-3", Token: token}))
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeError, msg.Type)

		other, _, err := tokens.Issue("job-3")
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, JobID: "job-3", Token: other}))
		msg = readMessage(t, conn)
		assert.Equal(t, MessageTypeSubscribed, msg.Type)
		assert.Equal(t, "job-3", msg.JobID)
	})
}

func TestHub_RejectsBadToken(t *testing.T) {
	_, tokens, server := setupHub(t)

	t.Run("缺少令牌", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "job-1", ""), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("令牌属于其他任务", func(t *testing.T) {
		token, _, err := tokens.Issue("job-2")
		require.NoError(t, err)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "job-1", token), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
