//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
)

func TestStatusRepo_LoadMissingKey(t *testing.T) {
	repo := NewStatusRepo(newMemRedis(), "", 0)
	doc, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Status != model.StatusIdle || doc.Countries.Len() != 0 {
		t.Errorf("expected empty doc, got %+v", doc)
	}
}

func TestStatusRepo_SaveLoad(t *testing.T) {
	ctx := context.Background()
	mem := newMemRedis()
	repo := NewStatusRepo(mem, "test:status", time.Hour)

	doc := model.NewStatusDocument()
	doc.Status = model.StatusStopping
	doc.Key = "k"
	doc.Countries.Add("b", "DZ")
	doc.Countries.Add("a", "US")

	if err := repo.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if mem.ttls["test:status"] != time.Hour {
		t.Errorf("expected ttl to be applied, got %s", mem.ttls["test:status"])
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Status != model.StatusStopping || got.Key != "k" {
		t.Errorf("unexpected doc %+v", got)
	}
	if got.Countries[0].Code != "b" || got.Countries[1].Code != "a" {
		t.Errorf("order not preserved: %+v", got.Countries)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := repo.Load(ctx); got.HasKey() {
		t.Errorf("expected empty doc after Clear")
	}
}

func TestStatusRepo_Errors(t *testing.T) {
	ctx := context.Background()

	mem := newMemRedis()
	mem.data["sms_hunter:status"] = "{broken"
	if _, err := NewStatusRepo(mem, "", 0).Load(ctx); !errors.Is(err, domain.ErrCorruptStatus) {
		t.Errorf("expected ErrCorruptStatus, got %v", err)
	}

	boom := errors.New("connection reset")
	mem = newMemRedis()
	mem.GetFunc = func(ctx context.Context, key string) (string, error) { return "", boom }
	mem.SetFunc = func(ctx context.Context, key string, value interface{}, exp time.Duration) error { return boom }
	repo := NewStatusRepo(mem, "", 0)
	if _, err := repo.Load(ctx); !errors.Is(err, boom) {
		t.Errorf("expected wrapped get error, got %v", err)
	}
	if err := repo.Save(ctx, model.NewStatusDocument()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped set error, got %v", err)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	mem := newMemRedis()
	rl := NewRateLimiter(mem)
	key := "rate_limit:code:12345"

	for i := 1; i <= 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d: expected allowed, got %v (%v)", i, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	if err != nil || ok {
		t.Fatalf("expected 4th call to be limited, got %v (%v)", ok, err)
	}
	if mem.ttls[key] != time.Minute {
		t.Errorf("expected window set on first hit, got %s", mem.ttls[key])
	}
}
