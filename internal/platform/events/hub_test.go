package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	received := make(chan PaymentStatusEvent, 1)
	bus.Subscribe(func(tenant string, evt PaymentStatusEvent) {
		if tenant != "clinica" {
			t.Errorf("unexpected tenant %q", tenant)
		}
		received <- evt
	})

	evt := PaymentStatusEvent{PackID: uuid.New(), Paid: true, PatientID: uuid.New()}
	bus.Publish("clinica", evt)

	select {
	case got := <-received:
		if got != evt {
			t.Errorf("expected %+v, got %+v", evt, got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	unsubscribe := bus.Subscribe(func(string, PaymentStatusEvent) {})
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
	unsubscribe()
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not panic or block.
	bus.Publish("clinica", PaymentStatusEvent{PackID: uuid.New()})
}

func newTestClient(topics ...string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		Topics: topics,
		Send:   make(chan []byte, 4),
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	subscribed := newTestClient(PaymentTopic("clinica"))
	other := newTestClient(PaymentTopic("otra"))
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(PaymentTopic("clinica"), Event{Type: "pack.payment_status", Topic: PaymentTopic("clinica")})

	select {
	case data := <-subscribed.Send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if evt.Type != "pack.payment_status" {
			t.Errorf("unexpected event type %q", evt.Type)
		}
	default:
		t.Fatal("expected a message for the subscribed client")
	}

	select {
	case <-other.Send:
		t.Error("client on another tenant's topic must not receive the event")
	default:
	}
}

func TestHub_FullBufferSkipped(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"credits:x"}, Send: make(chan []byte)}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		hub.Broadcast("credits:x", Event{Type: "pack.payment_status"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast must not block on a full client buffer")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient()
	hub.Register(client)

	topic := PaymentTopic("clinica")
	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{topic}})
	if hub.TopicCount(topic) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount(topic))
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{topic}})
	if hub.TopicCount(topic) != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.TopicCount(topic))
	}
	if len(client.Topics) != 0 {
		t.Errorf("expected client topic list cleared, got %v", client.Topics)
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(PaymentTopic("clinica"))
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if _, open := <-client.Send; open {
		t.Error("expected Send channel closed")
	}

	// A second unregister is a no-op.
	hub.Unregister(client)
}

func TestHub_AttachBusForwardsPayments(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	bus := NewBus()
	hub.AttachBus(bus)

	client := newTestClient(PaymentTopic("clinica"))
	hub.Register(client)

	packID := uuid.New()
	bus.Publish("clinica", PaymentStatusEvent{PackID: packID, Paid: true, PatientID: uuid.New()})

	select {
	case data := <-client.Send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if evt.Topic != PaymentTopic("clinica") {
			t.Errorf("unexpected topic %q", evt.Topic)
		}
		var payload PaymentStatusEvent
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payload.PackID != packID || !payload.Paid {
			t.Errorf("unexpected payload: %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the payment event on the websocket topic")
	}
}
