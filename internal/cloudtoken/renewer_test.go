package cloudtoken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHTTPRenewerRotatesCookies(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	if err := store.Save(validToken()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/lite/setting" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if c, err := r.Cookie("serviceToken"); err != nil || c.Value != "svc-token" {
			t.Errorf("expected current serviceToken cookie, got %v (%v)", c, err)
		}
		if c, err := r.Cookie("userId"); err != nil || c.Value != "12345" {
			t.Errorf("expected userId cookie, got %v (%v)", c, err)
		}
		http.SetCookie(w, &http.Cookie{Name: "serviceToken", Value: "svc-rotated"})
		http.SetCookie(w, &http.Cookie{Name: "i.mi.com_slh", Value: "slh-rotated"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	renewer := NewHTTPRenewer(store, srv.URL, srv.Client())
	mgr := NewManager(store, renewer.Renew, nil)
	if err := mgr.RenewNow(context.Background()); err != nil {
		t.Fatalf("RenewNow() error: %v", err)
	}

	tok, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok.ServiceToken != "svc-rotated" {
		t.Errorf("expected rotated serviceToken persisted, got %q", tok.ServiceToken)
	}
	if tok.SLH != "slh-rotated" {
		t.Errorf("expected rotated slh persisted, got %q", tok.SLH)
	}
	if tok.UserID != "12345" {
		t.Errorf("userId must survive renewal, got %q", tok.UserID)
	}
	if !mgr.Healthy() {
		t.Error("expected healthy token after a real renewal")
	}
}

func TestHTTPRenewerRejectedCredentialStaysUnhealthy(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	stale := validToken()
	stale.FetchedAt = time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	if err := store.Save(stale); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	dayOld := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(store.Path(), dayOld, dayOld); err != nil {
		t.Fatalf("Chtimes() error: %v", err)
	}
	if store.Healthy() {
		t.Fatal("expected a day-old token file to be unhealthy")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	renewer := NewHTTPRenewer(store, srv.URL, srv.Client())
	mgr := NewManager(store, renewer.Renew, nil)

	err := mgr.RenewNow(context.Background())
	if err == nil {
		t.Fatal("expected RenewNow to fail when the service rejects the credential")
	}
	if !strings.Contains(err.Error(), "please log in again") {
		t.Errorf("expected a re-login hint, got %v", err)
	}
	if mgr.Healthy() {
		t.Error("a rejected credential must not be reported healthy")
	}
}

func TestHTTPRenewerRequiresStoredCredential(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	renewer := NewHTTPRenewer(store, "http://127.0.0.1:1", nil)

	if _, err := renewer.Renew(context.Background()); err == nil {
		t.Fatal("expected error without a stored credential")
	}

	incomplete := validToken()
	incomplete.SLH = ""
	if err := store.Save(incomplete); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	_, err := renewer.Renew(context.Background())
	if err == nil {
		t.Fatal("expected error for an incomplete credential")
	}
	if !strings.Contains(err.Error(), "incomplete") {
		t.Errorf("expected incomplete-credential error, got %v", err)
	}
}
