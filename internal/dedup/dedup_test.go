package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	a := Key("C1", "hello @bob", []string{"u2", "u1", "u2"})
	b := Key("C1", "hello @bob", []string{"u1", "u2"})
	if a != b {
		t.Errorf("Key() depends on recipient order or duplicates:\n%s\n%s", a, b)
	}

	tests := []struct {
		name string
		key  string
	}{
		{"different card", Key("C2", "hello @bob", []string{"u1", "u2"})},
		{"different content", Key("C1", "hello @alice", []string{"u1", "u2"})},
		{"different recipients", Key("C1", "hello @bob", []string{"u1"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key == a {
				t.Errorf("Key() collided: %s", tt.key)
			}
		})
	}
}

func TestKeyDoesNotModifyRecipients(t *testing.T) {
	in := []string{"u3", "u1"}
	Key("C1", "x", in)
	if in[0] != "u3" || in[1] != "u1" {
		t.Errorf("Key() reordered input: %v", in)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(5 * time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	mustAdd := func(key string, want bool) {
		t.Helper()
		got, err := m.Add(ctx, key)
		if err != nil {
			t.Fatalf("Add(%s) error = %v", key, err)
		}
		if got != want {
			t.Errorf("Add(%s) = %v, want %v", key, got, want)
		}
	}

	mustAdd("k1", true)
	mustAdd("k1", false)
	mustAdd("k2", true)

	now = now.Add(4 * time.Second)
	mustAdd("k1", false)

	now = now.Add(time.Second)
	mustAdd("k1", true)

	if got := m.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after k2 expired", got)
	}

	if err := m.Remove(ctx, "k1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	mustAdd("k1", true)
}

func TestMemoryEmptyKey(t *testing.T) {
	m := NewMemory(0)
	if _, err := m.Add(context.Background(), ""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Add(\"\") error = %v, want ErrEmptyKey", err)
	}
	if m.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want DefaultTTL", m.ttl)
	}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return mr, client
}

func TestRedis(t *testing.T) {
	mr, client := setupRedis(t)
	d := NewRedis(client, 5*time.Second)
	ctx := context.Background()

	added, err := d.Add(ctx, "k1")
	if err != nil || !added {
		t.Fatalf("first Add() = %v, %v", added, err)
	}
	added, err = d.Add(ctx, "k1")
	if err != nil || added {
		t.Fatalf("second Add() = %v, %v, want duplicate", added, err)
	}

	if !mr.Exists(DefaultKeyPrefix + "k1") {
		t.Errorf("key not stored under %q", DefaultKeyPrefix)
	}
	if ttl := mr.TTL(DefaultKeyPrefix + "k1"); ttl != 5*time.Second {
		t.Errorf("TTL = %v, want 5s", ttl)
	}

	mr.FastForward(5 * time.Second)
	added, err = d.Add(ctx, "k1")
	if err != nil || !added {
		t.Fatalf("Add() after expiry = %v, %v", added, err)
	}

	if err := d.Remove(ctx, "k1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if mr.Exists(DefaultKeyPrefix + "k1") {
		t.Error("key still present after Remove")
	}

	if err := d.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestRedisSharedAcrossInstances(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	var first, second Deduper = NewRedis(client, time.Second), NewRedis(client, time.Second)
	key := Key("C1", "ping @u1", []string{"u1"})

	if added, err := first.Add(ctx, key); err != nil || !added {
		t.Fatalf("first instance Add() = %v, %v", added, err)
	}
	if added, err := second.Add(ctx, key); err != nil || added {
		t.Fatalf("second instance Add() = %v, %v, want duplicate", added, err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := setupRedis(t)
	d := NewRedis(client, time.Second)
	mr.Close()

	if _, err := d.Add(context.Background(), "k1"); err == nil {
		t.Error("Add() succeeded with Redis down")
	}
	if err := d.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() succeeded with Redis down")
	}
}
