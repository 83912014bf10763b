package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kitchenhero/cmd/identity"
	"kitchenhero/cmd/identity/ids"
	"kitchenhero/cmd/security/token"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxSecretBytes bounds passwords and refresh tokens before any hashing.
const maxSecretBytes = 4096

const tracerName = "kitchenhero/session"

// UserWithTokens is the result of register, login and refresh.
// It is handed to the caller once and never persisted.
//
// RefreshToken is empty after a login that found a live refresh token:
// the caller's existing token stays valid until RefreshExpiresAt.
type UserWithTokens struct {
	User             identity.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service implements the credential lifecycle over an identity.Store.
//
// Every operation takes an explicit now so expiry decisions are testable.
// The service holds no mutable state; it is safe for concurrent use.
type Service struct {
	cfg     Config
	store   identity.Store
	tokens  AccessTokenIssuer
	refresh *token.RefreshCodec

	log     *slog.Logger
	events  EventPublisher
	metrics *Metrics
	tracer  trace.Tracer

	// dummyHash is verified against when the email is unknown, so a miss
	// costs the same as a wrong password.
	dummyHash string
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEvents sets the event publisher (default: discard).
func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics sets the metrics sink (default: none).
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracerProvider sets the tracer provider (default otel.GetTracerProvider()).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithAccessTokenIssuer replaces the default JWT issuer.
func WithAccessTokenIssuer(t AccessTokenIssuer) Option {
	return func(s *Service) {
		if t != nil {
			s.tokens = t
		}
	}
}

// NewService validates cfg and builds a Service. Configuration problems
// are reported here, never per call.
func NewService(cfg Config, store identity.Store, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrMisconfiguration)
	}

	codec, err := token.NewRefreshCodec([]byte(cfg.RefreshHMACKey), cfg.RefreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh codec: %w", ErrMisconfiguration, err)
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		refresh: codec,
		log:     slog.Default(),
		events:  nopPublisher{},
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.tokens == nil {
		if s.tokens, err = NewJWTIssuer(cfg); err != nil {
			return nil, err
		}
	}

	if s.dummyHash, err = cfg.Password.Hash("kitchenhero-timing-equalizer"); err != nil {
		return nil, fmt.Errorf("%w: password hasher: %w", ErrMisconfiguration, err)
	}
	return s, nil
}

// Register creates an account and signs it in.
//
// Errors: ErrInvalidInput (email or password policy), ErrDuplicateAccount,
// ErrStorageUnavailable.
func (s *Service) Register(ctx context.Context, now time.Time, email, pw string) (_ UserWithTokens, err error) {
	ctx, op := s.begin(ctx, "register")
	defer func() { op.end(err) }()

	email = strings.TrimSpace(email)
	if !identity.ValidateEmail(email) {
		return UserWithTokens{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if err := s.cfg.Password.Validate(pw); err != nil {
		return UserWithTokens{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	hash, err := s.cfg.Password.Hash(pw)
	if err != nil {
		return UserWithTokens{}, fmt.Errorf("session: hash password: %w", err)
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return UserWithTokens{}, fmt.Errorf("session: new id: %w", err)
	}
	secret, refreshHash, err := s.refresh.Issue()
	if err != nil {
		return UserWithTokens{}, fmt.Errorf("session: refresh token: %w", err)
	}
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)

	cred := identity.UserCredential{
		ID:           id,
		Email:        email,
		EmailNorm:    identity.NormalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	cred.SetRefresh(refreshHash, refreshExp)

	created, err := s.store.Create(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			s.log.InfoContext(ctx, "auth.register.duplicate")
		}
		return UserWithTokens{}, s.storeErr(ctx, "register", err)
	}

	out, err := s.issue(created, secret, refreshExp, now)
	if err != nil {
		return UserWithTokens{}, err
	}

	s.log.InfoContext(ctx, "auth.register.ok", "user_id", created.ID)
	s.publish(ctx, Event{Type: EventUserRegistered, UserID: created.ID, At: now.UTC()})
	return out, nil
}

// Login verifies email and password and issues a fresh access token.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials at
// comparable cost.
//
// A live refresh token is left alone, so a client keeps the one it holds.
// A new refresh token is minted only when none is live (never issued,
// revoked or expired).
func (s *Service) Login(ctx context.Context, now time.Time, email, pw string) (_ UserWithTokens, err error) {
	ctx, op := s.begin(ctx, "login")
	defer func() { op.end(err) }()

	norm := identity.NormalizeEmail(email)
	if norm == "" || pw == "" || len(pw) > maxSecretBytes {
		_, _ = s.cfg.Password.Verify(s.dummyHash, pw)
		s.loginFailed(ctx, now, norm, "malformed")
		return UserWithTokens{}, ErrInvalidCredentials
	}

	cred, err := s.store.FindByEmail(ctx, norm)
	if err != nil {
		if identity.IsNotFound(err) {
			_, _ = s.cfg.Password.Verify(s.dummyHash, pw)
			s.loginFailed(ctx, now, norm, "unknown_email")
			return UserWithTokens{}, ErrInvalidCredentials
		}
		return UserWithTokens{}, s.storeErr(ctx, "login", err)
	}

	ok, err := s.cfg.Password.Verify(cred.PasswordHash, pw)
	if err != nil {
		s.log.ErrorContext(ctx, "auth.login.corrupt_credential", "user_id", cred.ID, "err", err)
		return UserWithTokens{}, fmt.Errorf("%w: %w", ErrCorruptCredential, err)
	}
	if !ok {
		s.loginFailed(ctx, now, norm, "bad_password")
		return UserWithTokens{}, ErrInvalidCredentials
	}

	dirty := false
	rehashed := false
	if s.cfg.Password.NeedsRehash(cred.PasswordHash) {
		if nh, err := s.cfg.Password.Hash(pw); err == nil {
			cred.PasswordHash = nh
			rehashed, dirty = true, true
		} else {
			s.log.WarnContext(ctx, "auth.login.rehash_failed", "user_id", cred.ID, "err", err)
		}
	}

	var secret string
	var refreshExp time.Time
	if cred.HasActiveRefresh(now) {
		refreshExp = *cred.RefreshTokenExpiry
	} else {
		var refreshHash string
		if secret, refreshHash, err = s.refresh.Issue(); err != nil {
			return UserWithTokens{}, fmt.Errorf("session: refresh token: %w", err)
		}
		refreshExp = now.Add(s.cfg.RefreshTokenTTL)
		cred.SetRefresh(refreshHash, refreshExp)
		dirty = true
	}

	if dirty {
		cred.UpdatedAt = now.UTC()
		if cred, err = s.store.Update(ctx, cred); err != nil {
			return UserWithTokens{}, s.storeErr(ctx, "login", err)
		}
	}

	out, err := s.issue(cred, secret, refreshExp, now)
	if err != nil {
		return UserWithTokens{}, err
	}

	s.log.InfoContext(ctx, "auth.login.ok", "user_id", cred.ID, "rehashed", rehashed, "new_refresh", secret != "")
	s.publish(ctx, Event{Type: EventLogin, UserID: cred.ID, At: now.UTC()})
	return out, nil
}

// Refresh exchanges a live refresh token for a new token pair. The presented
// token stops working as soon as the rotation commits.
//
// Errors: ErrInvalidRefreshToken (unknown, spent or expired),
// ErrConcurrentModification (lost a race with another refresh of the same
// token), ErrStorageUnavailable.
func (s *Service) Refresh(ctx context.Context, now time.Time, secret string) (_ UserWithTokens, err error) {
	ctx, op := s.begin(ctx, "refresh")
	defer func() { op.end(err) }()

	// The secret is opaque; it is compared exactly as presented.
	if secret == "" || len(secret) > maxSecretBytes {
		s.refreshRejected(ctx, now, "", "malformed")
		return UserWithTokens{}, ErrInvalidRefreshToken
	}

	cred, err := s.store.FindByRefreshTokenHash(ctx, s.refresh.HashForStorage(secret))
	if err != nil {
		if identity.IsNotFound(err) {
			s.refreshRejected(ctx, now, "", "unknown")
			return UserWithTokens{}, ErrInvalidRefreshToken
		}
		return UserWithTokens{}, s.storeErr(ctx, "refresh", err)
	}
	if !s.refresh.Matches(secret, cred.RefreshTokenHash) {
		s.refreshRejected(ctx, now, cred.ID, "mismatch")
		return UserWithTokens{}, ErrInvalidRefreshToken
	}
	if !cred.HasActiveRefresh(now) {
		s.refreshRejected(ctx, now, cred.ID, "expired")
		return UserWithTokens{}, ErrInvalidRefreshToken
	}

	newSecret, newHash, err := s.refresh.Issue()
	if err != nil {
		return UserWithTokens{}, fmt.Errorf("session: refresh token: %w", err)
	}
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)
	cred.SetRefresh(newHash, refreshExp)
	cred.UpdatedAt = now.UTC()

	updated, err := s.store.Update(ctx, cred)
	if err != nil {
		return UserWithTokens{}, s.storeErr(ctx, "refresh", err)
	}

	out, err := s.issue(updated, newSecret, refreshExp, now)
	if err != nil {
		return UserWithTokens{}, err
	}

	s.log.InfoContext(ctx, "auth.refresh.rotated", "user_id", updated.ID)
	s.publish(ctx, Event{Type: EventRefreshed, UserID: updated.ID, At: now.UTC()})
	return out, nil
}

// Revoke drops the user's outstanding refresh token (logout everywhere).
// It is idempotent; unknown or malformed ids yield ErrNotFound. Access
// tokens already issued stay valid until they expire.
func (s *Service) Revoke(ctx context.Context, now time.Time, userID string) (err error) {
	ctx, op := s.begin(ctx, "revoke")
	defer func() { op.end(err) }()

	userID = strings.TrimSpace(userID)
	if !ids.Valid(userID) {
		return fmt.Errorf("session.Revoke: %w", ErrNotFound)
	}
	cred, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return s.storeErr(ctx, "revoke", err)
	}

	if cred.RefreshTokenHash != "" || cred.RefreshTokenExpiry != nil {
		cred.ClearRefresh()
		cred.UpdatedAt = now.UTC()
		if _, err := s.store.Update(ctx, cred); err != nil {
			return s.storeErr(ctx, "revoke", err)
		}
	}

	s.log.InfoContext(ctx, "auth.revoke.ok", "user_id", cred.ID)
	s.publish(ctx, Event{Type: EventRevoked, UserID: cred.ID, At: now.UTC()})
	return nil
}

// ValidateAccessToken checks an access token's signature and claims at now.
// It never touches the store.
func (s *Service) ValidateAccessToken(tokenStr string, now time.Time) (AccessClaims, bool) {
	return s.tokens.Validate(tokenStr, now)
}

// GetUser returns the public projection of a user.
func (s *Service) GetUser(ctx context.Context, userID string) (identity.User, error) {
	userID = strings.TrimSpace(userID)
	if !ids.Valid(userID) {
		return identity.User{}, fmt.Errorf("session.GetUser: %w", ErrNotFound)
	}
	cred, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, s.storeErr(ctx, "get_user", err)
	}
	return cred.Public(), nil
}

// ---- internals ----

func (s *Service) issue(cred identity.UserCredential, secret string, refreshExp, now time.Time) (UserWithTokens, error) {
	access, accessExp, err := s.tokens.Issue(cred.ID, now)
	if err != nil {
		return UserWithTokens{}, err
	}
	return UserWithTokens{
		User:             cred.Public(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     secret,
		RefreshExpiresAt: refreshExp.UTC(),
	}, nil
}

// storeErr passes classified store errors through and wraps the rest as
// ErrStorageUnavailable.
func (s *Service) storeErr(ctx context.Context, op string, err error) error {
	if !identity.IsClassified(err) {
		err = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if errors.Is(err, ErrStorageUnavailable) {
		s.log.ErrorContext(ctx, "auth.storage.fail", "op", op, "err", err)
	}
	return err
}

func (s *Service) loginFailed(ctx context.Context, now time.Time, norm, reason string) {
	s.log.InfoContext(ctx, "auth.login.fail", "reason", reason)
	s.publish(ctx, Event{Type: EventLoginFailed, Email: norm, Reason: reason, At: now.UTC()})
}

func (s *Service) refreshRejected(ctx context.Context, now time.Time, userID, reason string) {
	s.log.InfoContext(ctx, "auth.refresh.rejected", "reason", reason)
	s.publish(ctx, Event{Type: EventRefreshRejected, UserID: userID, Reason: reason, At: now.UTC()})
}

func (s *Service) publish(ctx context.Context, e Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "auth.event.publish_failed", "type", string(e.Type), "err", err)
	}
}

// opScope carries the span, metrics and timing of one operation.
type opScope struct {
	name    string
	start   time.Time
	span    trace.Span
	metrics *Metrics
}

func (s *Service) begin(ctx context.Context, name string) (context.Context, *opScope) {
	ctx, span := s.tracer.Start(ctx, "session."+name, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, &opScope{name: name, start: time.Now(), span: span, metrics: s.metrics}
}

func (o *opScope) end(err error) {
	outcome := outcomeOf(err)
	o.metrics.observe(o.name, outcome, time.Since(o.start))

	o.span.SetAttributes(attribute.String("auth.outcome", outcome))
	switch outcome {
	case "ok", "invalid_input", "invalid_credentials", "invalid_refresh_token", "duplicate", "not_found":
	default:
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, outcome)
	}
	o.span.End()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, ErrCorruptCredential):
		return "corrupt"
	case errors.Is(err, ErrStorageUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
