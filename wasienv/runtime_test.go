package wasienv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultRuntimeIsShared(t *testing.T) {
	a := DefaultRuntime()
	b := DefaultRuntime()
	if a == nil || a != b {
		t.Fatalf("default runtime not shared: %v %v", a, b)
	}
}

func TestResumeAfter(t *testing.T) {
	tasks := DefaultRuntime().Tasks()

	tr := make(chan []byte, 1)
	got := make(chan []byte, 1)
	tasks.ResumeAfter(Trigger(tr), func(payload []byte) {
		got <- payload
	})

	tr <- []byte("wake")
	select {
	case payload := <-got:
		if string(payload) != "wake" {
			t.Fatalf("payload = %q", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("resumption never scheduled")
	}
}

func TestResumeAfterClosedTrigger(t *testing.T) {
	tasks := DefaultRuntime().Tasks()

	tr := make(chan []byte)
	fired := make(chan struct{}, 1)
	tasks.ResumeAfter(Trigger(tr), func([]byte) {
		fired <- struct{}{}
	})

	close(tr)
	select {
	case <-fired:
		t.Fatal("resumption fired on a trigger that never resolved")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBlockOn(t *testing.T) {
	tasks := DefaultRuntime().Tasks()

	boom := errors.New("boom")
	if err := tasks.BlockOn(context.TODO(), func(context.Context) error {
		return boom
	}); err != boom {
		t.Fatalf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.TODO())
	cancel()
	block := make(chan struct{})
	defer close(block)
	err := tasks.BlockOn(ctx, func(context.Context) error {
		<-block
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
