package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	applog "finanzas/internal/log"
)

var testSecret = []byte("test-secret")

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) listen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := IssueToken(testSecret, "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	sub, err := ParseToken(testSecret, tok)
	if err != nil || sub != "user-42" {
		t.Fatalf("ParseToken = %q, %v", sub, err)
	}

	if _, err := ParseToken([]byte("other"), tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	expired, _ := IssueToken(testSecret, "user-42", -time.Minute)
	if _, err := ParseToken(testSecret, expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
	if _, err := ParseToken(nil, tok); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func TestSignInAnonymousPersists(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "identity")
	p := NewProvider(nil, file, applog.Discard())
	id, err := p.SignInAnonymous(context.Background())
	if err != nil || id == "" {
		t.Fatalf("SignInAnonymous = %q, %v", id, err)
	}
	data, err := os.ReadFile(file)
	if err != nil || strings.TrimSpace(string(data)) != id {
		t.Fatalf("identity file = %q, %v", data, err)
	}

	again := NewProvider(nil, file, applog.Discard())
	id2, err := again.SignInAnonymous(context.Background())
	if err != nil || id2 != id {
		t.Fatalf("restarted provider issued %q, want %q (err=%v)", id2, id, err)
	}
}

func TestSignInAnonymousReplacesCorruptFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "identity")
	if err := os.WriteFile(file, []byte("not-a-uuid"), 0600); err != nil {
		t.Fatal(err)
	}
	p := NewProvider(nil, file, applog.Discard())
	id, err := p.SignInAnonymous(context.Background())
	if err != nil || id == "not-a-uuid" {
		t.Fatalf("SignInAnonymous = %q, %v", id, err)
	}
}

func TestOnChangeDeliversTransitions(t *testing.T) {
	p := NewProvider(testSecret, "", applog.Discard())
	var rec recorder
	cancel := p.OnChange(rec.listen)

	tok, _ := IssueToken(testSecret, "alice", time.Hour)
	if _, err := p.SignInWithToken(context.Background(), tok); err != nil {
		t.Fatalf("SignInWithToken: %v", err)
	}
	// same identity twice does not notify
	if _, err := p.SignInWithToken(context.Background(), tok); err != nil {
		t.Fatalf("SignInWithToken: %v", err)
	}
	p.SignOut()
	cancel()
	p.SignOut()
	if _, err := p.SignInWithToken(context.Background(), tok); err != nil {
		t.Fatalf("SignInWithToken: %v", err)
	}

	got := rec.seen()
	want := []string{"", "alice", ""}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("listener saw %q, want %q", got, want)
	}
	if p.Current() != "alice" {
		t.Fatalf("Current() = %q", p.Current())
	}
}

func TestSignInWithBadTokenKeepsState(t *testing.T) {
	p := NewProvider(testSecret, "", applog.Discard())
	if _, err := p.SignInWithToken(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if p.Current() != "" {
		t.Fatalf("failed sign-in changed identity to %q", p.Current())
	}
}

func TestSignInHonoursCancelledContext(t *testing.T) {
	p := NewProvider(testSecret, "", applog.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.SignInAnonymous(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
