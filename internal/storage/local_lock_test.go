package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLockerWaitsForRelease(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Acquire(context.Background(), "k", 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k", 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	unlock()
	unlock()
	second, err := l.Acquire(context.Background(), "k", 0)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	second()
}
