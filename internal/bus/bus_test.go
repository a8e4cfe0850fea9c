package bus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := New(nil)
	defer b.Close()

	sub := b.Subscribe("topic.a")

	b.Publish("topic.a", "hello")

	select {
	case msg := <-sub:
		if msg != "hello" {
			t.Fatalf("unexpected message: %v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := New(nil)
	defer b.Close()

	done := make(chan struct{})
	go func() {
		b.Publish("topic.none", 42)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	defer b.Close()

	sub := b.Subscribe("topic.a", "topic.b")
	b.Unsubscribe(sub, "topic.a")

	b.Publish("topic.b", "still here")

	select {
	case msg := <-sub:
		if msg != "still here" {
			t.Fatalf("unexpected message: %v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("remaining topic stopped delivering")
	}
}
