package payment

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/identity"
)

const (
	receiptTemplate   = "payment_receipt"
	reconcileTemplate = "payment_reconcile"
	sideEffectTimeout = 10 * time.Second

	// accounts of users with nothing in flight are dropped after accountIdleTTL
	accountIdleTTL       = time.Hour
	accountSweepInterval = time.Minute
)

type (
	// Service gives each dashboard user their own Controller and records every handshake.
	Service struct {
		backend    Backend
		gateway    Gateway
		dispatcher Dispatcher
		repo       Repository
		mailSvc    core.EmailService
		publisher  Publisher
		validate   *validator.Validate
		logger     core.Logger
		tracer     trace.Tracer

		defaultCurrency string
		brandName       string
		themeColor      string
		supportEmail    mail.Address
		frontendBaseURL string

		mu       sync.Mutex
		accounts map[string]*account // by identity subject
		sweptAt  time.Time
	}

	account struct {
		ctrl *Controller
		seen time.Time // guarded by Service.mu

		mu    sync.Mutex
		token string
	}

	// Status is a user's current handshake.
	Status struct {
		State     State      `json:"state"`
		SessionID string     `json:"session_id,omitempty"`
		Receipt   *Receipt   `json:"receipt,omitempty"`
		Error     *ErrorView `json:"error,omitempty"`
	}

	mailData struct {
		PayerID   string
		Purpose   string
		Amount    string
		Currency  string
		OrderID   string
		PaymentID string
		Message   string
	}
)

func NewService(
	backend Backend,
	gateway Gateway,
	dispatcher Dispatcher,
	repo Repository,
	mailSvc core.EmailService,
	publisher Publisher,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		backend:         backend,
		gateway:         gateway,
		dispatcher:      dispatcher,
		repo:            repo,
		mailSvc:         mailSvc,
		publisher:       publisher,
		validate:        validate,
		logger:          logger,
		tracer:          otel.Tracer("github.com/nexaric/portal/core/payment"),
		defaultCurrency: conf.Payment.DefaultCurrency,
		brandName:       conf.Payment.BrandName,
		themeColor:      conf.Payment.ThemeColor,
		supportEmail:    conf.SupportEmail,
		frontendBaseURL: conf.FrontendBaseURL,
		accounts:        make(map[string]*account),
	}
}

func (acct *account) setToken(token string) {
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if token != "" {
		acct.token = token
	}
}

func (acct *account) getToken(context.Context) (string, error) {
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.token == "" {
		return "", identity.ErrNoToken
	}
	return acct.token, nil
}

// account returns the caller's account, refreshing its credential.
func (svc *Service) account(caller identity.Identity) *account {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	now := nowFunc()
	svc.sweep(now)
	acct, ok := svc.accounts[caller.Subject]
	if !ok {
		acct = new(account)
		acct.ctrl = NewController(svc.backend, svc.gateway, svc.validate, acct.getToken, Options{
			BrandName:  svc.brandName,
			ThemeColor: svc.themeColor,
			Hooks:      svc.hooks(caller),
		})
		svc.accounts[caller.Subject] = acct
	}
	acct.seen = now
	acct.setToken(caller.Token)
	return acct
}

// sweep drops idle accounts whose controller has nothing in flight. svc.mu must be held.
func (svc *Service) sweep(now time.Time) {
	if now.Sub(svc.sweptAt) < accountSweepInterval {
		return
	}
	svc.sweptAt = now
	for subject, acct := range svc.accounts {
		if now.Sub(acct.seen) >= accountIdleTTL && !acct.ctrl.State().InFlight() {
			delete(svc.accounts, subject)
		}
	}
}

// owner returns the caller's account when sessionID is its open widget.
func (svc *Service) owner(caller identity.Identity, sessionID string) (*account, error) {
	svc.mu.Lock()
	acct, ok := svc.accounts[caller.Subject]
	if ok {
		acct.seen = nowFunc()
	}
	svc.mu.Unlock()
	if !ok || sessionID == "" || acct.ctrl.SessionID() != sessionID {
		return nil, ErrSessionNotFound
	}
	acct.setToken(caller.Token)
	return acct, nil
}

func (svc *Service) hooks(caller identity.Identity) Hooks {
	initiatedBy := caller.Subject
	return Hooks{
		OnOpen: func(r Receipt) {
			svc.record(caller, initiatedBy, r, nil)
		},
		OnSuccess: func(r Receipt) {
			svc.record(caller, initiatedBy, r, nil)
			if r.Request.Payer.Email != "" {
				svc.sendMail(receiptTemplate, "Payment received", r, nil, mail.Address{Name: r.Request.Payer.Name, Address: r.Request.Payer.Email})
			}
		},
		OnFailure: func(r Receipt, err error) {
			svc.record(caller, initiatedBy, r, err)
			if kind, _ := KindOf(err); kind == KindVerificationFailed {
				svc.sendMail(reconcileTemplate, "Payment verification failed", r, err, svc.supportEmail)
			}
		},
	}
}

// record writes the ledger row and publishes the event of a handshake.
// Errors are logged: the handshake outcome stands regardless.
func (svc *Service) record(caller identity.Identity, initiatedBy string, r Receipt, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if serr := svc.repo.SaveAttempt(ctx, NewAttempt(initiatedBy, r, err)); serr != nil {
		svc.logger.Error(fmt.Sprintf("saving payment attempt %s: %v", r.HandshakeID, serr), serr, caller)
	}
	if perr := svc.publisher.Publish(ctx, NewEvent(r, err)); perr != nil {
		svc.logger.Error(fmt.Sprintf("publishing payment event %s: %v", r.HandshakeID, perr), perr, caller)
	}
	if err != nil && !IsCancelled(err) {
		svc.logger.Warn(fmt.Sprintf("payment %s failed: %v", r.HandshakeID, err), caller)
	}
}

func (svc *Service) sendMail(tmpl, subject string, r Receipt, err error, to mail.Address) {
	data := mailData{
		PayerID:   r.Request.PayerID,
		Purpose:   r.Request.Purpose,
		Amount:    r.Request.Amount.StringFixed(2),
		Currency:  r.Request.Currency,
		OrderID:   r.Order.OrderID,
		PaymentID: r.PaymentID,
	}
	var perr *Error
	if errors.As(err, &perr) {
		data.Message = perr.Message
		if data.PaymentID == "" {
			data.PaymentID = perr.PaymentID
		}
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:              []mail.Address{to},
		Subject:         subject,
		TemplateName:    tmpl,
		TemplateData:    data,
		FrontendBaseURL: svc.frontendBaseURL,
	})
}

func (svc *Service) startSpan(ctx context.Context, name string, caller identity.Identity) (context.Context, trace.Span) {
	return svc.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("portal.user", caller.Subject)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Initiate starts a handshake for the caller. The default currency applies when req has none.
func (svc *Service) Initiate(ctx context.Context, caller identity.Identity, req Request) (checkout Checkout, err error) {
	ctx, span := svc.startSpan(ctx, "payment.initiate", caller)
	defer func() { endSpan(span, err) }()

	if core.CleanString(req.Currency) == "" {
		req.Currency = svc.defaultCurrency
	}
	return svc.account(caller).ctrl.Initiate(ctx, req)
}

// Options returns the widget options of the caller's open checkout session.
func (svc *Service) Options(caller identity.Identity, sessionID string) (CheckoutOptions, error) {
	if _, err := svc.owner(caller, sessionID); err != nil {
		return CheckoutOptions{}, err
	}
	return svc.dispatcher.Options(sessionID)
}

// Authorize relays the widget's success payload and returns the settled handshake.
func (svc *Service) Authorize(ctx context.Context, caller identity.Identity, sessionID string, auth Authorization) (r Receipt, err error) {
	ctx, span := svc.startSpan(ctx, "payment.authorize", caller)
	defer func() { endSpan(span, err) }()

	acct, err := svc.owner(caller, sessionID)
	if err != nil {
		return Receipt{}, err
	}
	if err = auth.Validate(svc.validate); err != nil {
		return Receipt{}, err
	}
	if err = svc.dispatcher.Authorize(ctx, sessionID, auth); err != nil {
		r, _ = acct.ctrl.Snapshot()
		return r, err
	}
	r, _ = acct.ctrl.Snapshot()
	return r, nil
}

// Fail relays the widget's payment.failed payload.
func (svc *Service) Fail(ctx context.Context, caller identity.Identity, sessionID string, failure GatewayFailure) (Receipt, error) {
	acct, err := svc.owner(caller, sessionID)
	if err != nil {
		return Receipt{}, err
	}
	err = svc.dispatcher.Fail(ctx, sessionID, failure)
	r, _ := acct.ctrl.Snapshot()
	return r, err
}

// Dismiss relays the widget's dismissal.
func (svc *Service) Dismiss(ctx context.Context, caller identity.Identity, sessionID string) (Receipt, error) {
	acct, err := svc.owner(caller, sessionID)
	if err != nil {
		return Receipt{}, err
	}
	err = svc.dispatcher.Dismiss(ctx, sessionID)
	r, _ := acct.ctrl.Snapshot()
	return r, err
}

// Status reports the caller's latest handshake.
func (svc *Service) Status(caller identity.Identity) Status {
	svc.mu.Lock()
	acct, ok := svc.accounts[caller.Subject]
	svc.mu.Unlock()
	if !ok {
		return Status{State: StateIdle}
	}

	r, err := acct.ctrl.Snapshot()
	return Status{
		State:     r.State,
		SessionID: acct.ctrl.SessionID(),
		Receipt:   &r,
		Error:     ViewOf(err),
	}
}

func (svc *Service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, id)
}

func (svc *Service) QueryAttempts(ctx context.Context, filter AttemptFilter, orderings ...core.DBOrdering) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, filter, orderings...)
}
