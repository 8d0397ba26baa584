package rcf

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// PubSubMessage is one published payload, tagged with the topic it was
// published under (spec.md section 4.I Publish/subscribe).
type PubSubMessage struct {
	Topic   string
	Payload []byte
}

// subscriber is one connected WebSocket fan-out target.
type subscriber struct {
	conn   *websocket.Conn
	topics map[string]struct{}
	send   chan PubSubMessage
}

// PubSubBroker is RCF's publish/subscribe fan-out service (spec.md section
// 4.I), grounded on share/loop_server.go's named-registry-plus-fan-out shape
// (there fanning TCP loop connections out by name; here fanning published
// messages out to subscribers by topic) and share/channel.go's
// BasicBridgeChannels bridging idiom, generalized from bridging two
// channels 1:1 to bridging one publisher to N subscribers. Subscriber
// transport is WebSocket (github.com/gorilla/websocket), since unlike RCF's
// primary request/response connections a subscriber has no matching request
// to piggyback a push notification on.
type PubSubBroker struct {
	logger   Logger
	upgrader websocket.Upgrader

	lock        sync.RWMutex
	subscribers map[*subscriber]struct{}
	byTopic     map[string]map[*subscriber]struct{}
}

// NewPubSubBroker creates an empty broker.
func NewPubSubBroker(logger Logger) *PubSubBroker {
	return &PubSubBroker{
		logger:      logger.Fork("pubsub"),
		subscribers: make(map[*subscriber]struct{}),
		byTopic:     make(map[string]map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades an HTTP request to a WebSocket subscriber connection,
// reading a first text frame naming the comma-separated topic list the caller
// wants delivered, then fanning out PubSubMessages published to any of
// those topics until the connection closes.
func (b *PubSubBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WLogf("websocket upgrade failed: %s", err)
		return
	}
	_, topicMsg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	sub := &subscriber{conn: conn, topics: make(map[string]struct{}), send: make(chan PubSubMessage, 64)}
	for _, t := range splitTopics(string(topicMsg)) {
		sub.topics[t] = struct{}{}
	}

	b.lock.Lock()
	b.subscribers[sub] = struct{}{}
	for t := range sub.topics {
		if b.byTopic[t] == nil {
			b.byTopic[t] = make(map[*subscriber]struct{})
		}
		b.byTopic[t][sub] = struct{}{}
	}
	b.lock.Unlock()

	defer b.removeSubscriber(sub)

	go b.readPump(sub)
	b.writePump(sub)
}

func (b *PubSubBroker) readPump(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			sub.conn.Close()
			return
		}
	}
}

func (b *PubSubBroker) writePump(sub *subscriber) {
	for msg := range sub.send {
		if err := sub.conn.WriteMessage(websocket.BinaryMessage, msg.Payload); err != nil {
			return
		}
	}
}

func (b *PubSubBroker) removeSubscriber(sub *subscriber) {
	b.lock.Lock()
	delete(b.subscribers, sub)
	for t := range sub.topics {
		delete(b.byTopic[t], sub)
	}
	b.lock.Unlock()
	close(sub.send)
	sub.conn.Close()
}

// Publish fans out msg to every subscriber currently subscribed to its
// Topic and returns how many subscribers it was queued for (spec.md section
// 4.I edge case: for a subscriber whose send buffer is full, msg is dropped
// rather than blocking the publisher; the subscriber stays subscribed).
func (b *PubSubBroker) Publish(msg PubSubMessage) int {
	b.lock.RLock()
	targets := make([]*subscriber, 0, len(b.byTopic[msg.Topic]))
	for sub := range b.byTopic[msg.Topic] {
		targets = append(targets, sub)
	}
	b.lock.RUnlock()

	delivered := 0
	for _, sub := range targets {
		select {
		case sub.send <- msg:
			delivered++
		default:
			b.logger.WLogf("subscriber send buffer full for topic %q, dropping", msg.Topic)
		}
	}
	return delivered
}

// SubscriberCount returns the number of subscribers currently subscribed to
// topic.
func (b *PubSubBroker) SubscriberCount(topic string) int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.byTopic[topic])
}

func splitTopics(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
