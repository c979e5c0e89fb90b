// Package checkout relays checkout widget sessions between the browser and payment handshakes.
//
// The widget runs in the payer's browser. Open registers a session holding the widget options
// and the handshake's callbacks; the browser fetches the options, and later reports the
// widget's outcome, which the relay hands to the callbacks. Sessions the browser abandons
// are dismissed once they expire.
package checkout

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

var nowFunc = time.Now

type (
	Relay struct {
		scriptURL  string
		sessionTTL time.Duration
		probeTTL   time.Duration
		http       *http.Client
		logger     core.Logger

		mu       sync.Mutex
		sessions map[string]*session
		ready    bool
		probedAt time.Time
	}

	session struct {
		id     string
		relay  *Relay
		opts   payment.CheckoutOptions
		cb     payment.Callbacks
		expiry *time.Timer
	}
)

var (
	_ payment.Gateway    = (*Relay)(nil)
	_ payment.Dispatcher = (*Relay)(nil)
	_ payment.Widget     = (*session)(nil)
)

func NewRelay(conf *core.Config, logger core.Logger) *Relay {
	return &Relay{
		scriptURL:  conf.Checkout.ScriptURL,
		sessionTTL: conf.Checkout.SessionTTL,
		probeTTL:   conf.Checkout.ProbeTTL,
		http:       &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
		sessions:   make(map[string]*session),
	}
}

// Ready probes the widget script with a HEAD request. The result is cached for the probe TTL.
// An empty script URL disables the probe.
func (r *Relay) Ready(ctx context.Context) bool {
	if r.scriptURL == "" {
		return true
	}

	r.mu.Lock()
	if !r.probedAt.IsZero() && nowFunc().Sub(r.probedAt) < r.probeTTL {
		ready := r.ready
		r.mu.Unlock()
		return ready
	}
	r.mu.Unlock()

	// the cached result is shared by every caller, so the probe outlives this one's request
	ready := r.probe(context.WithoutCancel(ctx))
	if !ready && ctx.Err() != nil {
		return false
	}

	r.mu.Lock()
	r.ready, r.probedAt = ready, nowFunc()
	r.mu.Unlock()
	return ready
}

func (r *Relay) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.scriptURL, nil)
	if err != nil {
		r.logger.Error("checkout: building probe request", err)
		return false
	}
	res, err := r.http.Do(req)
	if err != nil {
		r.logger.Warn("checkout: widget script unreachable", err)
		return false
	}
	_ = res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		r.logger.Warn("checkout: widget script unavailable", map[string]interface{}{"status": res.StatusCode})
		return false
	}
	return true
}

// Open registers a widget session. cb receives whatever the browser reports for it.
func (r *Relay) Open(_ context.Context, opts payment.CheckoutOptions, cb payment.Callbacks) (payment.Widget, error) {
	s := &session{
		id:    uuid.NewString(),
		relay: r,
		opts:  opts,
		cb:    cb,
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	if r.sessionTTL > 0 {
		s.expiry = time.AfterFunc(r.sessionTTL, func() { r.expire(s.id) })
	}
	r.mu.Unlock()

	return s, nil
}

// Options returns the widget options of an open session.
func (r *Relay) Options(sessionID string) (payment.CheckoutOptions, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return payment.CheckoutOptions{}, err
	}
	return s.opts, nil
}

func (r *Relay) Authorize(ctx context.Context, sessionID string, auth payment.Authorization) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	return s.cb.Authorized(ctx, auth)
}

func (r *Relay) Fail(ctx context.Context, sessionID string, failure payment.GatewayFailure) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	return s.cb.Failed(ctx, failure)
}

func (r *Relay) Dismiss(ctx context.Context, sessionID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	return s.cb.Dismissed(ctx)
}

// Len returns the number of open sessions.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close dismisses every open session.
func (r *Relay) Close() {
	r.mu.Lock()
	open := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	for _, s := range open {
		_ = s.cb.Dismissed(context.Background())
		_ = s.Close()
	}
}

func (r *Relay) get(sessionID string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	return s, nil
}

func (r *Relay) expire(sessionID string) {
	s, err := r.get(sessionID)
	if err != nil {
		return
	}
	r.logger.Info("checkout: session expired", map[string]interface{}{"session": sessionID, "order": s.opts.OrderID})
	// callbacks close the session, so the lock must not be held here
	_ = s.cb.Dismissed(context.Background())
	_ = s.Close()
}

func (s *session) ID() string { return s.id }

// Close unregisters the session. Closing twice is a no-op.
func (s *session) Close() error {
	r := s.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
	}
	if s.expiry != nil {
		s.expiry.Stop()
	}
	return nil
}
