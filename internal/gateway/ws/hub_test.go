package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/dohr-michael/bizclaw/internal/events"
)

type echoHandler struct{}

func (echoHandler) HandleRequest(_ context.Context, user string, method Method, params json.RawMessage) (any, error) {
	if method == MethodCallTool {
		return nil, errors.New("tool failed")
	}
	return map[string]any{"user": user, "method": string(method), "params": string(params)}, nil
}

func startHub(t *testing.T, bus *events.Bus) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(bus, echoHandler{}, func(r *http.Request) string { return r.Header.Get("X-User") }, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"X-User": []string{"alice"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn
}

func request(t *testing.T, conn *websocket.Conn, id string, method Method, params any) {
	t.Helper()
	raw, _ := json.Marshal(params)
	data, _ := MarshalFrame(Frame{Type: FrameTypeRequest, ID: id, Method: string(method), Params: raw})
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		f, err := UnmarshalFrame(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func TestHub_RequestsCarryUser(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()
	_, conn := startHub(t, bus)

	request(t, conn, "r1", MethodListSkills, nil)
	f := readUntil(t, conn, func(f Frame) bool { return f.ID == "r1" })
	if f.OK == nil || !*f.OK {
		t.Fatalf("expected ok response, got %+v", f)
	}
	var p map[string]any
	_ = json.Unmarshal(f.Payload, &p)
	if p["user"] != "alice" || p["method"] != "list_skills" {
		t.Errorf("unexpected payload %v", p)
	}

	request(t, conn, "r2", MethodCallTool, map[string]any{"name": "x"})
	f = readUntil(t, conn, func(f Frame) bool { return f.ID == "r2" })
	if f.OK == nil || *f.OK || f.Error != "tool failed" {
		t.Errorf("expected error response, got %+v", f)
	}
}

func TestHub_SubscribeFiltersEvents(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()
	_, conn := startHub(t, bus)

	request(t, conn, "sub", MethodSubscribe, SubscribeParams{RunID: "run-2"})
	readUntil(t, conn, func(f Frame) bool { return f.ID == "sub" })

	other := events.NewTypedEvent(events.SourceSkill, events.SkillStartedPayload{Skill: "a"})
	other.RunID = "run-1"
	mine := events.NewTypedEvent(events.SourceSkill, events.SkillStartedPayload{Skill: "b"})
	mine.RunID = "run-2"
	bus.Publish(other)
	bus.Publish(mine)

	f := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameTypeEvent })
	if f.RunID != "run-2" {
		t.Errorf("expected only run-2 events, got %+v", f)
	}
}
