package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates a client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, found, err := rc.Get(ctx, "k1")
	if err != nil || !found || string(val) != "v1" {
		t.Fatalf("Get: val=%q found=%v err=%v", val, found, err)
	}

	if _, found, err := rc.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("miss should be found=false with nil error, got found=%v err=%v", found, err)
	}

	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, found, _ := rc.Get(ctx, "k1"); found {
		t.Fatalf("k1 should be gone after Del")
	}
}

func TestMGetFiltersMissing(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = rc.Set(ctx, "k1", []byte("v1"), time.Minute)
	_ = rc.Set(ctx, "k2", []byte("v2"), time.Minute)

	got, err := rc.MGet(ctx, []string{"k1", "k2", "missing"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 || string(got["k1"]) != "v1" || string(got["k2"]) != "v2" {
		t.Fatalf("unexpected values: %+v", got)
	}
}

func TestSetOperations_ForCellIndex(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.SAdd(ctx, "cell:abc", "q1", "q2"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	if err := rc.SAdd(ctx, "cell:abc", "q2"); err != nil {
		t.Fatalf("SAdd dup: %v", err)
	}

	members, err := rc.SMembers(ctx, "cell:abc")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
}

func TestTTLExpiry(t *testing.T) {
	rc, mr := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, found, _ := rc.Get(ctx, "ttl-key"); !found {
		t.Fatalf("expected hit before expiry")
	}

	mr.FastForward(3 * time.Second)

	if _, found, _ := rc.Get(ctx, "ttl-key"); found {
		t.Fatalf("expected ttl-key to be absent after expiry")
	}
}

func TestContextCancel_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, err := rc.MGet(ctx, []string{"k"}); err == nil {
		t.Fatalf("expected error on MGet with canceled context")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}
