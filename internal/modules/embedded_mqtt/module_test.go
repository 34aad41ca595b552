package embeddedmqtt

import (
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"
)

func TestNewServerAllowAnonymous(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if server == nil {
		t.Fatalf("expected server")
	}
}

func TestNewServerRequiresAuthConfig(t *testing.T) {
	_, err := newServer(zap.NewNop(), Config{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLedgerScopesDevicesToTheirUser(t *testing.T) {
	ledger, err := buildLedger(Config{
		TopicBase: "ps/v1",
		Hub:       Credential{Username: "psd", Password: "secret"},
		Devices:   []Credential{{Username: "alice", Password: "a"}, {Username: "bob", Password: "b"}},
	})
	if err != nil {
		t.Fatalf("buildLedger: %v", err)
	}
	if len(ledger.Auth) != 3 || len(ledger.ACL) != 3 {
		t.Fatalf("expected 3 rules, got %d auth %d acl", len(ledger.Auth), len(ledger.ACL))
	}
	if ledger.ACL[0].Filters[auth.RString("#")] != auth.ReadWrite {
		t.Fatalf("hub should reach every topic")
	}
	alice := ledger.ACL[1]
	if alice.Username != "alice" || alice.Filters[auth.RString("ps/v1/user/alice/#")] != auth.ReadWrite {
		t.Fatalf("unexpected alice rule: %+v", alice)
	}
	if _, ok := alice.Filters[auth.RString("#")]; ok {
		t.Fatalf("device rule must not grant every topic")
	}
}

func TestLedgerRejectsShadowedHubLogin(t *testing.T) {
	_, err := buildLedger(Config{
		Hub:     Credential{Username: "psd"},
		Devices: []Credential{{Username: "psd"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestInlinePublishSubscribe(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	received := make(chan packets.Packet, 1)
	handler := func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}
	if err := server.Subscribe("test/#", 1, handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := server.Publish("test/topic", []byte("payload"), false, 0); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case pk := <-received:
		if string(pk.Payload) != "payload" {
			t.Fatalf("unexpected payload")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestInlineClient(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	client := newInlineClient(server)

	received := make(chan paho.Message, 4)
	if err := client.Subscribe("ps/v1/user/+/up/+", 1, func(_ paho.Client, msg paho.Message) {
		received <- msg
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Subscribe("ps/v1/user/+/up/+", 1, func(paho.Client, paho.Message) {}); err == nil {
		t.Fatalf("expected duplicate subscribe error")
	}

	if err := client.Publish("ps/v1/user/alice/up/k1", 0, false, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-received:
		if msg.Topic() != "ps/v1/user/alice/up/k1" || string(msg.Payload()) != "hello" {
			t.Fatalf("unexpected message %s %q", msg.Topic(), msg.Payload())
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}

	if err := client.Unsubscribe("ps/v1/user/+/up/+"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = client.Publish("ps/v1/user/alice/up/k1", 0, false, []byte("again"))
	select {
	case msg := <-received:
		t.Fatalf("unexpected message after unsubscribe: %q", msg.Payload())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerURL(t *testing.T) {
	if BrokerURL("127.0.0.1:1883", false) != "mqtt://127.0.0.1:1883" {
		t.Fatalf("expected mqtt scheme")
	}
	if BrokerURL("127.0.0.1:8883", true) != "mqtts://127.0.0.1:8883" {
		t.Fatalf("expected mqtts scheme")
	}
}
