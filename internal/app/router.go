package app

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type View string

const (
	ViewLedger   View = "ledger"
	ViewPlanner  View = "planner"
	ViewCalendar View = "calendar"
)

var ErrUnknownView = errors.New("unknown view")

// Views lists the views in display order.
func Views() []View {
	return []View{ViewLedger, ViewPlanner, ViewCalendar}
}

func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case ViewLedger, ViewPlanner, ViewCalendar:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
}

// Router holds the active view. It knows nothing about records.
type Router struct {
	mu     sync.RWMutex
	active View
}

func NewRouter() *Router {
	return &Router{active: ViewLedger}
}

func (r *Router) Active() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Switch makes name the active view. An unknown name leaves the active view
// unchanged.
func (r *Router) Switch(name string) (View, error) {
	v, err := ParseView(name)
	if err != nil {
		return r.Active(), err
	}
	r.mu.Lock()
	r.active = v
	r.mu.Unlock()
	return v, nil
}
