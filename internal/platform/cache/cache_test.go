package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(data) != "v" {
		t.Errorf("expected v, got %s", data)
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), 30*time.Second)
	now = now.Add(31 * time.Second)

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if m.Len() != 0 {
		t.Errorf("expected lazy eviction, got %d entries", m.Len())
	}
}

func TestMemory_NoTTLPersists(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), 0)
	now = now.Add(24 * time.Hour)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Error("expected entry without ttl to persist")
	}
}

func TestMemory_DeleteMany(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "a", []byte("1"), time.Minute)
	_ = m.Set(ctx, "b", []byte("2"), time.Minute)
	_ = m.Set(ctx, "c", []byte("3"), time.Minute)

	if err := m.Delete(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", m.Len())
	}
}

func TestMemory_EvictExpired(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()
	_ = m.Set(ctx, "old", []byte("1"), time.Second)
	_ = m.Set(ctx, "new", []byte("2"), time.Hour)

	now = now.Add(time.Minute)
	m.evictExpired()
	if m.Len() != 1 {
		t.Errorf("expected 1 entry after eviction, got %d", m.Len())
	}
}

func TestJSONHelpers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	type row struct {
		ID   string `json:"id"`
		Time string `json:"time"`
	}

	var miss []row
	ok, err := GetJSON(ctx, m, "rows", &miss)
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	in := []row{{ID: "1", Time: "09:00 AM"}, {ID: "2", Time: "02:00 PM"}}
	if err := SetJSON(ctx, m, "rows", in, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var out []row
	ok, err = GetJSON(ctx, m, "rows", &out)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(out) != 2 || out[1].Time != "02:00 PM" {
		t.Errorf("unexpected rows: %+v", out)
	}
}

func TestGetJSON_CorruptEntry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "bad", []byte("{not json"), time.Minute)

	var v map[string]string
	if _, err := GetJSON(ctx, m, "bad", &v); err == nil {
		t.Error("expected decode error")
	}
}

func TestRedis_InvalidURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "://nope", "th:"); err == nil {
		t.Error("expected parse error for invalid url")
	}
}

var _ Cache = (*Memory)(nil)
var _ Cache = (*Redis)(nil)
