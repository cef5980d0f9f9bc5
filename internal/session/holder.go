// Package session owns the authenticated actor. It is the single source of
// truth every view reads the actor from.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
)

// API is the part of the backend the holder talks to.
type API interface {
	Profile(ctx context.Context) (*models.Actor, error)
	Login(ctx context.Context, creds api.Credentials) error
	Logout(ctx context.Context) error
	Register(ctx context.Context, r api.Registration) (string, error)
	RegisterCaptain(ctx context.Context, r api.CaptainRegistration) (string, error)
}

type Holder struct {
	api      API
	nav      Navigator
	notifier notify.Notifier
	logger   *slog.Logger

	mu     sync.RWMutex
	actor  *models.Actor
	subs   map[int]func(*models.Actor)
	nextID int
}

func NewHolder(backend API, nav Navigator, n notify.Notifier, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = notify.Log{Logger: logger}
	}
	return &Holder{api: backend, nav: nav, notifier: n, logger: logger, subs: make(map[int]func(*models.Actor))}
}

// Actor returns a copy of the signed-in actor, or nil when signed out.
func (h *Holder) Actor() *models.Actor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.actor == nil {
		return nil
	}
	a := *h.actor
	return &a
}

func (h *Holder) SignedIn() bool { return h.Actor() != nil }

// FetchProfile loads the actor from the session cookie. Any failure means
// signed out; it is never reported as an error.
func (h *Holder) FetchProfile(ctx context.Context) *models.Actor {
	a, err := h.api.Profile(ctx)
	if err != nil || a == nil || a.ID == "" {
		if err != nil && !errors.Is(err, api.ErrUnauthorized) {
			h.logger.Warn("profile fetch failed", "error", err)
		}
		h.set(nil)
		return nil
	}
	h.set(a)
	return h.Actor()
}

// Login submits credentials and, once the profile loads, sends the actor
// to the home view of its role. Credential errors are returned for the form
// to display.
func (h *Holder) Login(ctx context.Context, creds api.Credentials) error {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return fmt.Errorf("email and password are required: %w", api.ErrInvalidInput)
	}
	if creds.Role != "" && !creds.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", creds.Role, api.ErrInvalidInput)
	}
	if err := h.api.Login(ctx, creds); err != nil {
		return err
	}
	a := h.FetchProfile(ctx)
	if a == nil {
		return nil
	}
	h.notifier.Notify(notify.Success, "Logged in")
	h.navigate(Target{View: HomeFor(a.Role)})
	return nil
}

// Logout clears the actor even when the server call fails; the server error
// is still returned.
func (h *Holder) Logout(ctx context.Context) error {
	err := h.api.Logout(ctx)
	if err != nil {
		h.logger.Warn("logout request failed", "error", err)
	}
	h.set(nil)
	h.navigate(Target{View: ViewLogin})
	return err
}

func (h *Holder) Register(ctx context.Context, r api.Registration) (string, error) {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" || strings.TrimSpace(r.FirstName) == "" {
		return "", fmt.Errorf("name, email and password are required: %w", api.ErrInvalidInput)
	}
	msg, err := h.api.Register(ctx, r)
	if err != nil {
		return "", err
	}
	h.navigate(Target{View: ViewLogin})
	return msg, nil
}

func (h *Holder) RegisterCaptain(ctx context.Context, r api.CaptainRegistration) (string, error) {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" || strings.TrimSpace(r.FirstName) == "" {
		return "", fmt.Errorf("name, email and password are required: %w", api.ErrInvalidInput)
	}
	if !models.VehicleType(r.Vehicle.VehicleType).Valid() {
		return "", fmt.Errorf("unknown vehicle type %q: %w", r.Vehicle.VehicleType, api.ErrInvalidInput)
	}
	msg, err := h.api.RegisterCaptain(ctx, r)
	if err != nil {
		return "", err
	}
	h.navigate(Target{View: ViewLogin})
	return msg, nil
}

// Expired reports whether err is an authentication failure. If so the actor
// is dropped and the login view shown, which is how every view treats an
// expired session.
func (h *Holder) Expired(err error) bool {
	if !errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	h.set(nil)
	h.navigate(Target{View: ViewLogin})
	return true
}

// Subscribe registers fn to run after every actor change. The returned
// func detaches it.
func (h *Holder) Subscribe(fn func(*models.Actor)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Holder) set(a *models.Actor) {
	h.mu.Lock()
	changed := !sameActor(h.actor, a)
	if a != nil {
		cp := *a
		a = &cp
	}
	h.actor = a
	subs := make([]func(*models.Actor), 0, len(h.subs))
	if changed {
		for _, fn := range h.subs {
			subs = append(subs, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range subs {
		if a == nil {
			fn(nil)
			continue
		}
		cp := *a
		fn(&cp)
	}
}

func (h *Holder) navigate(t Target) {
	if h.nav != nil {
		h.nav.Navigate(t)
	}
}

func sameActor(a, b *models.Actor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
