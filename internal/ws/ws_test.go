package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/chat"
	"github.com/vivenzalife/vivenza/internal/db/dbtest"
	"github.com/vivenzalife/vivenza/internal/logging"
	"github.com/vivenzalife/vivenza/internal/models"
)

type fakeConversations struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeConversations) SendMessage(_ context.Context, callerID, conversationID, content string, _ *string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "send:"+callerID+":"+conversationID+":"+content)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: "m1", ConversationID: conversationID, SenderID: callerID}, nil
}

func (f *fakeConversations) MarkRead(_ context.Context, callerID, conversationID string) (chat.ReadReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "read:"+callerID+":"+conversationID)
	return chat.ReadReceipt{Success: true, Updated: 2}, f.err
}

func startHub(t *testing.T, conversations Conversations) *Hub {
	t.Helper()
	hub := NewHub(conversations, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func newClient(hub *Hub, userID string) *Client {
	return &Client{userID: userID, hub: hub, send: make(chan any, sendBuffer)}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := startHub(t, &fakeConversations{})

	phone := newClient(hub, "ana")
	laptop := newClient(hub, "ana")
	hub.register <- phone
	hub.register <- laptop

	assert.Eventually(t, func() bool { return hub.IsUserOnline("ana") }, time.Second, 5*time.Millisecond)
	assert.False(t, hub.IsUserOnline("beto"))

	hub.unregister <- phone
	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients["ana"]) == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, hub.IsUserOnline("ana"))

	hub.unregister <- laptop
	assert.Eventually(t, func() bool { return !hub.IsUserOnline("ana") }, time.Second, 5*time.Millisecond)

	_, open := <-laptop.send
	assert.False(t, open, "send channel should be closed on unregister")
}

func TestPublishReachesEveryConnectionOfEachUser(t *testing.T) {
	hub := startHub(t, &fakeConversations{})

	anaPhone := newClient(hub, "ana")
	anaLaptop := newClient(hub, "ana")
	beto := newClient(hub, "beto")
	caio := newClient(hub, "caio")
	for _, c := range []*Client{anaPhone, anaLaptop, beto, caio} {
		hub.register <- c
	}
	require.Eventually(t, func() bool { return hub.IsUserOnline("caio") }, time.Second, 5*time.Millisecond)

	hub.Publish([]string{"ana", "beto"}, chat.Event{Type: chat.EventRead, ConversationID: "c1", ReaderID: "beto"})

	for _, c := range []*Client{anaPhone, anaLaptop, beto} {
		select {
		case got := <-c.send:
			event, ok := got.(chat.Event)
			require.True(t, ok)
			assert.Equal(t, "c1", event.ConversationID)
		case <-time.After(time.Second):
			t.Fatalf("client of %s did not receive the event", c.userID)
		}
	}

	select {
	case <-caio.send:
		t.Error("non-participant received the event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(&fakeConversations{}, logging.Discard())

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*2; i++ {
			hub.Publish([]string{"ana"}, chat.Event{Type: chat.EventMessage})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no hub loop running")
	}
}

func TestHandleFrame(t *testing.T) {
	conversations := &fakeConversations{}
	hub := NewHub(conversations, logging.Discard())
	client := newClient(hub, "ana")

	reply := client.handleFrame(Frame{Type: FrameSendMessage, ConversationID: "c1", Content: "oi", ClientMessageID: "tmp-1"})
	require.NotNil(t, reply)
	assert.Equal(t, FrameAck, reply.Type)
	assert.Equal(t, "tmp-1", reply.ClientMessageID)
	assert.Equal(t, "m1", reply.MessageID)

	reply = client.handleFrame(Frame{Type: FrameMarkRead, ConversationID: "c1"})
	require.NotNil(t, reply)
	require.NotNil(t, reply.Receipt)
	assert.Equal(t, int64(2), reply.Receipt.Updated)

	assert.Nil(t, client.handleFrame(Frame{Type: "call_offer"}))
	assert.Equal(t, []string{"send:ana:c1:oi", "read:ana:c1"}, conversations.calls)

	conversations.err = apperr.NewForbidden("not a participant")
	reply = client.handleFrame(Frame{Type: FrameSendMessage, ConversationID: "c2", Content: "oi"})
	require.NotNil(t, reply)
	assert.Equal(t, FrameError, reply.Type)
	assert.Equal(t, apperr.Forbidden, reply.Code)
	assert.NotEmpty(t, reply.Error)

	conversations.err = errors.New("database is locked")
	reply = client.handleFrame(Frame{Type: FrameSendMessage, ConversationID: "c2", Content: "oi"})
	require.NotNil(t, reply)
	assert.Equal(t, apperr.StoreError, reply.Code)
	assert.NotContains(t, reply.Error, "locked")
}

func TestHandleWebSocketRequiresCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(&fakeConversations{}, logging.Discard())

	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 401, w.Code)
}

func TestWebSocketIntegration(t *testing.T) {
	gin.SetMode(gin.TestMode)

	conn := dbtest.Open(t)
	ana := dbtest.CreateUser(t, conn, "Ana")
	beto := dbtest.CreateUser(t, conn, "Beto")

	chatSvc := chat.New(conn, logging.Discard())
	hub := startHub(t, chatSvc)
	chatSvc.SetPublisher(hub)

	conversationID, err := chatSvc.StartOrGetConversation(context.Background(), ana, beto)
	require.NoError(t, err)

	// Stand-in for the auth middleware.
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set("user_id", c.Query("as"))
		hub.HandleWebSocket(c)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	dial := func(userID string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?as=" + userID
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}

	anaConn := dial(ana)
	betoConn := dial(beto)
	require.Eventually(t, func() bool {
		return hub.IsUserOnline(ana) && hub.IsUserOnline(beto)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, anaConn.WriteJSON(Frame{
		Type:            FrameSendMessage,
		ConversationID:  conversationID,
		Content:         "Bom dia!",
		ClientMessageID: "tmp-1",
	}))

	betoConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event chat.Event
	require.NoError(t, betoConn.ReadJSON(&event))
	assert.Equal(t, chat.EventMessage, event.Type)
	assert.Equal(t, conversationID, event.ConversationID)
	require.NotNil(t, event.Message)
	require.NotNil(t, event.Message.Content)
	assert.Equal(t, "Bom dia!", *event.Message.Content)

	// The sender sees both its ack and the broadcast, in either order.
	anaConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		var frame map[string]any
		require.NoError(t, anaConn.ReadJSON(&frame))
		seen[frame["type"].(string)] = true
	}
	assert.True(t, seen[FrameAck])
	assert.True(t, seen[chat.EventMessage])

	messages, err := chatSvc.ListMessages(context.Background(), beto, conversationID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, ana, messages[0].SenderID)
}
