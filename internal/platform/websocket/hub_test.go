package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/cache"
)

// ownTopics lets a user subscribe only to "test:{their id}".
type ownTopics struct {
	mu        sync.Mutex
	snapshots int
}

func (o *ownTopics) Authorize(_ context.Context, s *auth.Session, topic string) error {
	if topic != "test:"+s.UserID.String() {
		return ErrForbidden
	}
	return nil
}

func (o *ownTopics) Snapshot(_ context.Context, s *auth.Session, topic string) (Event, error) {
	o.mu.Lock()
	o.snapshots++
	o.mu.Unlock()
	return NewEvent("snapshot", topic, map[string]string{"user": s.UserID.String()})
}

func newTestHub() (*Hub, *ownTopics) {
	hub := NewHub(zerolog.Nop())
	th := &ownTopics{}
	hub.Handle("test:", th)
	return hub, th
}

func newTestClient(hub *Hub) *Client {
	c := NewClient(&auth.Session{UserID: uuid.New(), Role: auth.RolePatient, ExpiresAt: time.Now().Add(time.Hour)})
	hub.Register(c)
	return c
}

func readEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func ownTopic(c *Client) string {
	return "test:" + c.Session.UserID.String()
}

func TestHub_SubscribeSendsSnapshot(t *testing.T) {
	hub, th := newTestHub()
	c := newTestClient(hub)

	hub.Subscribe(context.Background(), c, []string{ownTopic(c)})

	if hub.TopicCount(ownTopic(c)) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount(ownTopic(c)))
	}
	evt := readEvent(t, c)
	if evt.Type != "snapshot" || evt.Topic != ownTopic(c) {
		t.Errorf("unexpected snapshot event %+v", evt)
	}
	if th.snapshots != 1 {
		t.Errorf("expected 1 snapshot, got %d", th.snapshots)
	}
}

func TestHub_SubscribeForbidden(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)

	hub.Subscribe(context.Background(), c, []string{"test:" + uuid.NewString()})

	evt := readEvent(t, c)
	if evt.Type != "error" || evt.Error != ErrForbidden.Error() {
		t.Errorf("expected forbidden error frame, got %+v", evt)
	}
	if len(c.Topics) != 0 {
		t.Errorf("expected no topics, got %v", c.Topics)
	}
}

func TestHub_SubscribeUnknownPrefix(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)

	hub.Subscribe(context.Background(), c, []string{"nope:1"})

	evt := readEvent(t, c)
	if evt.Error != ErrUnknownTopic.Error() {
		t.Errorf("expected unknown topic error, got %+v", evt)
	}
}

func TestHub_SubscribeTwiceKeepsOneEntry(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)

	hub.Subscribe(context.Background(), c, []string{ownTopic(c)})
	hub.Subscribe(context.Background(), c, []string{ownTopic(c)})

	if len(c.Topics) != 1 {
		t.Errorf("expected 1 topic, got %v", c.Topics)
	}
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub, _ := newTestHub()
	sub := newTestClient(hub)
	other := newTestClient(hub)
	hub.Subscribe(context.Background(), sub, []string{ownTopic(sub)})
	readEvent(t, sub)

	evt, _ := NewEvent("chat.messages", "", []int{1, 2})
	hub.Broadcast(ownTopic(sub), evt)

	got := readEvent(t, sub)
	if got.Type != "chat.messages" || got.Topic != ownTopic(sub) {
		t.Errorf("unexpected event %+v", got)
	}
	select {
	case <-other.Send:
		t.Fatal("non-subscriber should not receive the event")
	default:
	}
}

func TestHub_UnsubscribeAndUnregister(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)
	hub.Subscribe(context.Background(), c, []string{ownTopic(c)})

	hub.Unsubscribe(c, []string{ownTopic(c)})
	if hub.TopicCount(ownTopic(c)) != 0 || len(c.Topics) != 0 {
		t.Fatalf("expected topic removed, got %d %v", hub.TopicCount(ownTopic(c)), c.Topics)
	}

	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	for range c.Send {
	}
	// Second unregister is a no-op.
	hub.Unregister(c)
}

func TestHub_ProcessMessageUnknownAction(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)

	hub.ProcessMessage(context.Background(), c, ClientMessage{Action: "shout"})
	if evt := readEvent(t, c); evt.Type != "error" {
		t.Errorf("expected error frame, got %+v", evt)
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub, _ := newTestHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestClient(hub)
			hub.Subscribe(context.Background(), c, []string{ownTopic(c)})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_RequiresSession(t *testing.T) {
	hub, _ := newTestHub()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), httptest.NewRecorder())

	err := NewHandler(hub, nil, nil).HandleConnect(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub, _ := newTestHub()
	issuer := auth.NewIssuer("ws-test-secret", "telehealth", time.Hour)
	revocations := auth.NewRevocationStore(cache.NewMemory())

	e := echo.New()
	g := e.Group("", auth.Authenticate(issuer, revocations, zerolog.Nop()))
	NewHandler(hub, revocations, nil).RegisterRoutes(g)

	server := httptest.NewServer(e)
	defer server.Close()

	userID := uuid.New()
	token, _, err := issuer.Issue(userID, auth.RoleDoctor)
	if err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?access_token=" + token
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	topic := "test:" + userID.String()
	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{topic}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap Event
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != "snapshot" {
		t.Fatalf("expected snapshot, got %+v", snap)
	}

	evt, _ := NewEvent("chat.messages", topic, []string{"hello"})
	hub.Broadcast(topic, evt)

	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if received.Type != "chat.messages" {
		t.Fatalf("expected chat.messages, got %s", received.Type)
	}
}

func snapshotVersion(t *testing.T, evt Event) int {
	t.Helper()
	var v int
	if err := json.Unmarshal(evt.Data, &v); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	return v
}

func TestHub_PublishSkipsTopicsWithoutSubscribers(t *testing.T) {
	hub, _ := newTestHub()
	loaded := false
	err := hub.Publish(context.Background(), "test:nobody", func(context.Context) (Event, error) {
		loaded = true
		return Event{}, nil
	})
	if err != nil || loaded {
		t.Errorf("expected no load, got loaded=%v err=%v", loaded, err)
	}
}

func TestHub_PublishDeliversInLoadOrder(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)
	topic := ownTopic(c)
	hub.Subscribe(context.Background(), c, []string{topic})
	readEvent(t, c)

	var mu sync.Mutex
	version := 1
	current := func() int {
		mu.Lock()
		defer mu.Unlock()
		return version
	}

	loaded := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = hub.Publish(context.Background(), topic, func(context.Context) (Event, error) {
			v := current()
			close(loaded)
			<-release
			return NewEvent("snapshot", topic, v)
		})
	}()

	<-loaded
	mu.Lock()
	version = 2
	mu.Unlock()
	go func() {
		defer wg.Done()
		_ = hub.Publish(context.Background(), topic, func(context.Context) (Event, error) {
			return NewEvent("snapshot", topic, current())
		})
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	first, second := readEvent(t, c), readEvent(t, c)
	if snapshotVersion(t, first) != 1 || snapshotVersion(t, second) != 2 {
		t.Errorf("expected versions 1 then 2, got %d then %d", snapshotVersion(t, first), snapshotVersion(t, second))
	}
}

type sessionServer struct {
	issuer      *auth.Issuer
	revocations *auth.RevocationStore
	url         string
}

func newSessionServer(t *testing.T, ttl time.Duration) *sessionServer {
	t.Helper()
	hub, _ := newTestHub()
	ss := &sessionServer{
		issuer:      auth.NewIssuer("ws-test-secret", "telehealth", ttl),
		revocations: auth.NewRevocationStore(cache.NewMemory()),
	}
	h := NewHandler(hub, ss.revocations, nil)
	h.sessionCheck = 20 * time.Millisecond

	e := echo.New()
	h.RegisterRoutes(e.Group("", auth.Authenticate(ss.issuer, ss.revocations, zerolog.Nop())))
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	ss.url = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?access_token="
	return ss
}

func expectSessionClosed(t *testing.T, conn *gorillawebsocket.Conn, within time.Duration) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(within))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !gorillawebsocket.IsCloseError(err, gorillawebsocket.ClosePolicyViolation) {
			t.Fatalf("expected policy violation close, got %v", err)
		}
		return
	}
}

func TestHandler_ClosesRevokedSession(t *testing.T) {
	ss := newSessionServer(t, time.Hour)
	token, session, err := ss.issuer.Issue(uuid.New(), auth.RolePatient)
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(ss.url+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := ss.revocations.Revoke(context.Background(), session); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	expectSessionClosed(t, conn, 2*time.Second)
}

func TestHandler_ClosesExpiredSession(t *testing.T) {
	ss := newSessionServer(t, 2*time.Second)
	token, _, err := ss.issuer.Issue(uuid.New(), auth.RoleDoctor)
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(ss.url+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expectSessionClosed(t, conn, 4*time.Second)
}

type failingRevocations struct{}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("cache down")
}

func TestHandler_SessionValid(t *testing.T) {
	hub, _ := newTestHub()
	live := &auth.Session{UserID: uuid.New(), TokenID: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	expired := &auth.Session{UserID: uuid.New(), TokenID: "t2", ExpiresAt: time.Now().Add(-time.Second)}

	h := NewHandler(hub, nil, nil)
	if !h.sessionValid(context.Background(), live) {
		t.Error("expected live session to be valid")
	}
	if h.sessionValid(context.Background(), expired) {
		t.Error("expected expired session to be invalid")
	}
	if NewHandler(hub, failingRevocations{}, nil).sessionValid(context.Background(), live) {
		t.Error("expected failed revocation lookup to end the session")
	}
}
