package notify

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(Channel)

	n := NewRedisNotifier(mr.Addr(), "")
	// miniredis delivers subscriber messages on an unbuffered channel, so
	// publishing blocks until the message is read; run Invalidate
	// concurrently to avoid deadlocking the test.
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Invalidate("/chat", "", "/logs")
	}()

	first := <-sub.Messages()
	if first.Channel != Channel || first.Message != "/chat" {
		t.Fatalf("unexpected message %+v", first)
	}
	second := <-sub.Messages()
	if second.Message != "/logs" {
		t.Fatalf("unexpected message %+v", second)
	}
	<-done
}

func TestRedisNotifierSwallowsFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	n := NewRedisNotifier(mr.Addr(), "")
	mr.Close()
	// must not panic or block
	n.Invalidate("/chat")
}
