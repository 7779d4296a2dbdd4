package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/you/uvian/internal/bus"
	"github.com/you/uvian/internal/relay"
)

func receiveWait(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case msg := <-c.send:
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame arrived")
		return frame{}
	}
}

// Publish on the bus, relay picks it up, room members get the frame.
func TestMessageEventReachesJoinedClient(t *testing.T) {
	b := bus.NewMemory()
	h := NewHub(zap.NewNop())
	rel := relay.New(b, h, zap.NewNop())
	rel.Start(context.Background())
	defer rel.Stop()

	a, other := testClient("a"), testClient("b")
	h.Join("c1", a)
	h.Join("c2", other)

	err := b.Publish(context.Background(), "conversation:c1:messages", map[string]any{
		"conversationId": "c1",
		"message":        map[string]any{"text": "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}

	f := receiveWait(t, a)
	if f.Event != "new_message" {
		t.Errorf("event = %q", f.Event)
	}
	var payload map[string]any
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["conversationId"] != "c1" {
		t.Errorf("conversationId = %v", payload["conversationId"])
	}
	msg, ok := payload["message"].(map[string]any)
	if !ok || msg["text"] != "hi" {
		t.Errorf("message = %v", payload["message"])
	}

	select {
	case got := <-other.send:
		t.Fatalf("room c2 received %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJobStatusEventReachesJobRoom(t *testing.T) {
	b := bus.NewMemory()
	h := NewHub(zap.NewNop())
	rel := relay.New(b, h, zap.NewNop())
	rel.Start(context.Background())
	defer rel.Stop()

	watcher := testClient("w")
	h.Join("j1", watcher)

	err := b.Publish(context.Background(), "job:j1:status", map[string]any{
		"jobId":  "j1",
		"status": "completed",
	})
	if err != nil {
		t.Fatal(err)
	}

	f := receiveWait(t, watcher)
	if f.Event != "job_update" {
		t.Errorf("event = %q", f.Event)
	}
}
