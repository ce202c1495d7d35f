package notify_test

import (
	"testing"
	"time"

	"github.com/libeufin-go/corebank/internal/store/notify"
	"github.com/stretchr/testify/require"
)

func TestPublishWakesWaiter(t *testing.T) {
	h := notify.NewHub()
	wake, release := h.Register("alice")
	defer release()

	done := make(chan struct{})
	go func() {
		<-wake
		close(done)
	}()

	h.Publish("alice")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestPublishDoesNotWakeOtherAccounts(t *testing.T) {
	h := notify.NewHub()
	wake, release := h.Register("alice")
	defer release()

	h.Publish("bob")

	select {
	case <-wake:
		t.Fatal("alice's waiter woke from bob's publish")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReleaseWithoutPublishIsSafe(t *testing.T) {
	h := notify.NewHub()
	_, release := h.Register("alice")
	release()
	release() // idempotent
}

func TestMultipleWaitersAllWake(t *testing.T) {
	h := notify.NewHub()
	wake1, release1 := h.Register("alice")
	wake2, release2 := h.Register("alice")
	defer release1()
	defer release2()

	h.Publish("alice")

	select {
	case <-wake1:
	case <-time.After(time.Second):
		t.Fatal("waiter 1 not woken")
	}
	select {
	case <-wake2:
	case <-time.After(time.Second):
		t.Fatal("waiter 2 not woken")
	}
}
