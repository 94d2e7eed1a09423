package session

import (
	"context"
	"testing"
)

func TestBadgerStorageRoundTrip(t *testing.T) {
	storage, err := OpenBadgerStorage("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer storage.Close()
	ctx := context.Background()

	if _, ok, err := storage.GetItem(ctx, "token"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := storage.SetItem(ctx, "token", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, err := storage.GetItem(ctx, "token"); err != nil || !ok || v != "abc" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := storage.RemoveItem(ctx, "token"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := storage.GetItem(ctx, "token"); ok {
		t.Fatal("expected key removed")
	}
}

func TestBadgerStoragePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := OpenBadgerStorage(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := NewStore(first).Login(ctx, "tok", testIdentity()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenBadgerStorage(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	store := NewStore(second)
	if err := store.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !store.IsAuthenticated() || store.CurrentUserID() != "42" {
		t.Fatalf("session not restored from badger: %+v", store.Snapshot())
	}
}
