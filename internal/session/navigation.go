package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-client/internal/models"
)

// View names the screen a front end should show.
type View string

const (
	ViewLogin       View = "login"
	ViewRegister    View = "register"
	ViewHome        View = "home"
	ViewCaptainHome View = "captain-home"
	ViewAdmin       View = "admin"
	ViewWaiting     View = "waiting"
	ViewChat        View = "chat"
	ViewSummary     View = "summary"
	ViewPayment     View = "payment"
)

// HomeFor returns the landing view of a role.
func HomeFor(r models.Role) View {
	switch r {
	case models.RoleCaptain:
		return ViewCaptainHome
	case models.RoleAdmin:
		return ViewAdmin
	case models.RoleRider:
		return ViewHome
	}
	return ViewLogin
}

// Target is a navigation request. RideID carries the ride the next view
// should resolve, so views do not depend on the persisted slot alone.
type Target struct {
	View   View   `json:"view"`
	RideID string `json:"ride_id,omitempty"`
}

type Navigator interface {
	Navigate(t Target)
}

// Router is the in-process Navigator. Navigating to the current target is
// a no-op, which makes racing push and poll navigations harmless.
type Router struct {
	mu      sync.Mutex
	current Target
	history []Target
	subs    map[int]func(Target)
	nextID  int
	timers  map[*time.Timer]struct{}
	logger  *slog.Logger
}

func NewRouter(start View, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		current: Target{View: start},
		subs:    make(map[int]func(Target)),
		timers:  make(map[*time.Timer]struct{}),
		logger:  logger,
	}
}

func (r *Router) Navigate(t Target) {
	r.mu.Lock()
	if t == r.current {
		r.mu.Unlock()
		return
	}
	r.current = t
	r.history = append(r.history, t)
	subs := make([]func(Target), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	r.logger.Debug("navigate", "view", t.View, "ride_id", t.RideID)
	for _, fn := range subs {
		fn(t)
	}
}

// NavigateAfter navigates once d has elapsed. A non-positive delay
// navigates immediately. Pending navigations are dropped by Stop.
func (r *Router) NavigateAfter(d time.Duration, t Target) {
	if d <= 0 {
		r.Navigate(t)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, pending := r.timers[timer]
		delete(r.timers, timer)
		r.mu.Unlock()
		if pending {
			r.Navigate(t)
		}
	})
	r.timers[timer] = struct{}{}
}

// Stop cancels every pending delayed navigation.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t := range r.timers {
		t.Stop()
		delete(r.timers, t)
	}
}

func (r *Router) Current() Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns every effective navigation in order.
func (r *Router) History() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Target, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Router) Subscribe(fn func(Target)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// DelayedNavigator is implemented by navigators that can schedule a
// navigation, like Router.
type DelayedNavigator interface {
	Navigator
	NavigateAfter(d time.Duration, t Target)
}

// NavigateAfter schedules t on nav, falling back to a timer goroutine when
// nav cannot schedule by itself.
func NavigateAfter(nav Navigator, d time.Duration, t Target) {
	if dn, ok := nav.(DelayedNavigator); ok {
		dn.NavigateAfter(d, t)
		return
	}
	if d <= 0 {
		nav.Navigate(t)
		return
	}
	time.AfterFunc(d, func() { nav.Navigate(t) })
}
