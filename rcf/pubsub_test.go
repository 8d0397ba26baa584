package rcf

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSplitTopics(t *testing.T) {
	got := splitTopics("a,b,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitTopics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitTopics = %v, want %v", got, want)
		}
	}
}

func TestPubSubBrokerPublishDeliversToSubscriber(t *testing.T) {
	logger := NewLogger("pubsub-test", LogLevelError)
	broker := NewPubSubBroker(logger)

	server := httptest.NewServer(broker)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("weather")); err != nil {
		t.Fatalf("subscribe write: %s", err)
	}

	// Give the broker a moment to register the subscriber before publishing.
	deadline := time.Now().Add(time.Second)
	for broker.SubscriberCount("weather") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	n := broker.Publish(PubSubMessage{Topic: "weather", Payload: []byte("sunny")})
	if n != 1 {
		t.Fatalf("Publish delivered to %d subscribers, want 1", n)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	if string(payload) != "sunny" {
		t.Fatalf("payload = %q, want sunny", payload)
	}
}

func TestPubSubBrokerPublishIgnoresOtherTopics(t *testing.T) {
	logger := NewLogger("pubsub-test", LogLevelError)
	broker := NewPubSubBroker(logger)
	n := broker.Publish(PubSubMessage{Topic: "nobody-subscribed", Payload: []byte("x")})
	if n != 0 {
		t.Fatalf("Publish delivered to %d subscribers, want 0", n)
	}
}
