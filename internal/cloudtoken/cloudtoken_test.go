package cloudtoken

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func validToken() *Token {
	return &Token{
		ServiceToken:        "svc-token",
		UserID:              "12345",
		IsValidServiceToken: "true",
		SLH:                 "slh-value",
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	if _, err := store.Load(); err == nil {
		t.Fatal("expected error loading missing token")
	}

	if err := store.Save(validToken()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	tok, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok.ServiceToken != "svc-token" || tok.UserID != "12345" {
		t.Errorf("unexpected token: %+v", tok)
	}
	if tok.FetchedAt == "" {
		t.Error("expected fetched_at to be set on save")
	}
}

func TestTokenValid(t *testing.T) {
	if !validToken().Valid() {
		t.Error("expected complete token to be valid")
	}
	incomplete := validToken()
	incomplete.SLH = ""
	if incomplete.Valid() {
		t.Error("expected token with missing field to be invalid")
	}
	var nilTok *Token
	if nilTok.Valid() {
		t.Error("expected nil token to be invalid")
	}
}

func TestStoreHealthy(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	if store.Healthy() {
		t.Error("expected missing token to be unhealthy")
	}

	if err := store.Save(validToken()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !store.Healthy() {
		t.Error("expected fresh complete token to be healthy")
	}

	incomplete := validToken()
	incomplete.ServiceToken = ""
	if err := store.Save(incomplete); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if store.Healthy() {
		t.Error("expected incomplete token to be unhealthy")
	}
}

func TestManagerRenewNow(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	mgr := NewManager(store, func(ctx context.Context) (*Token, error) {
		return validToken(), nil
	}, nil)

	if err := mgr.RenewNow(context.Background()); err != nil {
		t.Fatalf("RenewNow() error: %v", err)
	}
	if !mgr.Healthy() {
		t.Error("expected healthy token after renewal")
	}
}

func TestManagerRenewError(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	mgr := NewManager(store, func(ctx context.Context) (*Token, error) {
		return nil, errors.New("upstream down")
	}, nil)

	if err := mgr.RenewNow(context.Background()); err == nil {
		t.Fatal("expected renewal error")
	}
	if mgr.Healthy() {
		t.Error("expected unhealthy state after failed renewal")
	}
}

func TestManagerStartStop(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	renewals := make(chan struct{}, 10)
	mgr := NewManager(store, func(ctx context.Context) (*Token, error) {
		select {
		case renewals <- struct{}{}:
		default:
		}
		return validToken(), nil
	}, nil)
	mgr.SetInterval(10 * time.Millisecond)

	mgr.Start(context.Background())
	select {
	case <-renewals:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate renewal")
	}
	mgr.Stop()

	// Stop must be idempotent.
	mgr.Stop()
}
