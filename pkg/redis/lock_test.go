package redis

import (
	"context"
	"testing"
	"time"
)

func TestLockIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("sync-drain")

	first, err := NewLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire should win, ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire should lose, ok=%v err=%v", ok, err)
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("non-owner release should be a no-op: %v", err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("non-owner release must not free the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := second.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after release should win, ok=%v err=%v", ok, err)
	}
}

func TestLockReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	lock, err := NewLock(client, client.LockKey("cron"), 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", lock.ttl)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}

	delete(mock.data, lock.Key())
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release of an expired lock should succeed: %v", err)
	}
}

func TestNewLockValidation(t *testing.T) {
	if _, err := NewLock(nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewLock(&Client{}, "", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestReleaseLeavesTakenOverLease(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	lock, err := NewLock(client, client.LockKey("sync:till-1"), time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}

	mock.data[lock.Key()] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mock.data[lock.Key()] != "someone-else" {
		t.Fatalf("release must not delete a lease owned by another holder")
	}
}
