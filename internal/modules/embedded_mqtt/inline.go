package embeddedmqtt

import (
	"errors"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// InlineClient publishes and subscribes through the broker's inline
// connection, with the same method set as the networked hub client.
type InlineClient struct {
	server *mqtt.Server

	mu     sync.Mutex
	nextID int
	subs   map[string]int
}

func newInlineClient(server *mqtt.Server) *InlineClient {
	return &InlineClient{server: server, nextID: 1, subs: map[string]int{}}
}

// Publish publishes a message from the inline client.
func (c *InlineClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return c.server.Publish(topic, payload, retained, qos)
}

// Subscribe registers handler for a topic filter.
func (c *InlineClient) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	c.mu.Lock()
	if _, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		return errors.New("already subscribed to " + topic)
	}
	id := c.nextID
	c.nextID++
	c.subs[topic] = id
	c.mu.Unlock()

	err := c.server.Subscribe(topic, id, func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		handler(nil, inlineMessage{pk: pk})
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
	}
	return err
}

// Unsubscribe removes the subscription for a topic filter.
func (c *InlineClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	id, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.server.Unsubscribe(topic, id)
}

type inlineMessage struct {
	pk packets.Packet
}

func (m inlineMessage) Duplicate() bool   { return m.pk.FixedHeader.Dup }
func (m inlineMessage) Qos() byte         { return m.pk.FixedHeader.Qos }
func (m inlineMessage) Retained() bool    { return m.pk.FixedHeader.Retain }
func (m inlineMessage) Topic() string     { return m.pk.TopicName }
func (m inlineMessage) MessageID() uint16 { return m.pk.PacketID }
func (m inlineMessage) Payload() []byte   { return m.pk.Payload }
func (m inlineMessage) Ack()              {}
