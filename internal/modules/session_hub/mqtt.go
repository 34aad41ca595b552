package sessionhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/pkg/ps"
)

const defaultOutboxSize = 1024

var errOutboxFull = errors.New("mqtt outbox full")

// MQTTClient is the broker connection the binding publishes and subscribes
// through.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

type outbound struct {
	topic   string
	payload []byte
}

// MQTTBinding carries the session protocol over per-device MQTT topics.
// Publishing happens on the Run goroutine so handlers never block on the
// broker.
type MQTTBinding struct {
	log       *zap.Logger
	hub       *Hub
	client    MQTTClient
	topicBase string
	outbox    chan outbound
}

// NewMQTTBinding creates an MQTT binding for hub.
func NewMQTTBinding(log *zap.Logger, hub *Hub, client MQTTClient, topicBase string) *MQTTBinding {
	if log == nil {
		log = zap.NewNop()
	}
	if topicBase == "" {
		topicBase = ps.BaseTopic
	}
	return &MQTTBinding{
		log:       log,
		hub:       hub,
		client:    client,
		topicBase: topicBase,
		outbox:    make(chan outbound, defaultOutboxSize),
	}
}

// Run subscribes to device topics and publishes hub output until ctx ends.
func (b *MQTTBinding) Run(ctx context.Context) error {
	upTopic := fmt.Sprintf("%s/user/+/up/+", b.topicBase)
	goneTopic := fmt.Sprintf("%s/user/+/gone/+", b.topicBase)

	if err := b.client.Subscribe(upTopic, 1, b.handleUp); err != nil {
		return err
	}
	defer b.client.Unsubscribe(upTopic)
	if err := b.client.Subscribe(goneTopic, 1, b.handleGone); err != nil {
		return err
	}
	defer b.client.Unsubscribe(goneTopic)

	b.log.Info("mqtt binding ready", zap.String("topic_base", b.topicBase))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.outbox:
			if err := b.client.Publish(msg.topic, 1, false, msg.payload); err != nil {
				b.log.Warn("publish failed", zap.String("topic", msg.topic), zap.Error(err))
			}
		}
	}
}

func (b *MQTTBinding) handleUp(_ paho.Client, msg paho.Message) {
	user, dir, key, ok := ps.ParseDeviceTopic(b.topicBase, msg.Topic())
	if !ok || dir != "up" {
		return
	}
	env, err := ps.DecodeEnvelope(msg.Payload())
	if err != nil {
		b.log.Warn("invalid envelope", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if env.Type == ps.MsgHello || !b.hub.attached(user, key) {
		b.hub.Attach(user, key, b.sink(user, key))
	}
	b.hub.Handle(user, key, env)
}

func (b *MQTTBinding) handleGone(_ paho.Client, msg paho.Message) {
	user, dir, key, ok := ps.ParseDeviceTopic(b.topicBase, msg.Topic())
	if !ok || dir != "gone" {
		return
	}
	b.hub.Detach(user, key, 0, "mqtt gone")
}

func (b *MQTTBinding) sink(user string, key string) Sink {
	topic := ps.TopicDown(b.topicBase, user, key)
	return func(env ps.Envelope) error {
		payload, err := json.Marshal(env)
		if err != nil {
			return err
		}
		select {
		case b.outbox <- outbound{topic: topic, payload: payload}:
			return nil
		default:
			return errOutboxFull
		}
	}
}
