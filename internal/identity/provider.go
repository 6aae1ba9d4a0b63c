// Package identity issues the per-user identifier the rest of the system
// partitions records by. Users sign in anonymously (a UUID persisted on
// disk) or with a pre-issued HS256 token whose subject is the user id.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	applog "finanzas/internal/log"
)

// Listener receives the current user id; "" means signed out.
type Listener func(userID string)

type Provider struct {
	secret       []byte
	identityFile string
	logger       *applog.Logger

	// notifyMu serialises deliveries so listeners observe changes in order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   string
	anonID    string
	listeners map[int]Listener
	nextID    int
}

// NewProvider creates a provider. secret verifies sign-in tokens; identityFile
// keeps the anonymous id across restarts and may be empty.
func NewProvider(secret []byte, identityFile string, logger *applog.Logger) *Provider {
	if logger == nil {
		logger = applog.FromSlog(nil, applog.ComponentIdentity)
	}
	return &Provider{
		secret:       secret,
		identityFile: identityFile,
		logger:       logger,
		listeners:    make(map[int]Listener),
	}
}

// SignInAnonymous signs in with the device's anonymous id, creating it on first use.
func (p *Provider) SignInAnonymous(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := p.anonymousID()
	if err != nil {
		return "", fmt.Errorf("anonymous sign-in: %w", err)
	}
	p.logger.InfoContext(ctx, "Signed in anonymously", applog.FieldUserID, id)
	p.set(id)
	return id, nil
}

// SignInWithToken verifies token and signs in as its subject.
func (p *Provider) SignInWithToken(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := ParseToken(p.secret, token)
	if err != nil {
		return "", err
	}
	p.logger.InfoContext(ctx, "Signed in with token", applog.FieldUserID, id)
	p.set(id)
	return id, nil
}

// SignOut clears the current identity.
func (p *Provider) SignOut() {
	p.set("")
}

// Current returns the signed-in user id or "".
func (p *Provider) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// OnChange registers fn and immediately calls it with the current identity.
// fn is then called on every change until cancel is invoked. fn must not call
// back into the provider's sign-in methods.
func (p *Provider) OnChange(fn Listener) (cancel func()) {
	p.notifyMu.Lock()
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	current := p.current
	p.mu.Unlock()
	fn(current)
	p.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) set(userID string) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	changed := p.current != userID
	p.current = userID
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Debug("Identity changed", applog.FieldUserID, userID, "listeners", len(listeners))
	for _, l := range listeners {
		l(userID)
	}
}

func (p *Provider) anonymousID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.anonID != "" {
		return p.anonID, nil
	}
	if p.identityFile == "" {
		p.anonID = uuid.NewString()
		return p.anonID, nil
	}

	data, err := os.ReadFile(p.identityFile)
	switch {
	case err == nil:
		if id, perr := uuid.Parse(strings.TrimSpace(string(data))); perr == nil {
			p.anonID = id.String()
			return p.anonID, nil
		}
		p.logger.Warn("Identity file is corrupt, issuing a new anonymous id", "path", p.identityFile)
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read identity file: %w", err)
	}

	newID := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(p.identityFile), 0755); err != nil {
		return "", fmt.Errorf("create identity directory: %w", err)
	}
	if err := os.WriteFile(p.identityFile, []byte(newID+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write identity file: %w", err)
	}
	p.anonID = newID
	return newID, nil
}
