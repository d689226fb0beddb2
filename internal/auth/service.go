package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync/atomic"
	"time"

	"microsight/dashboard-service/internal/apperr"
	"microsight/dashboard-service/internal/models"
	"microsight/dashboard-service/internal/nav"
	"microsight/dashboard-service/internal/role"
	"microsight/dashboard-service/internal/schedule"
	"microsight/dashboard-service/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultLatency  = time.Second
	minSecretLength = 8
)

var tracer = otel.Tracer("microsight/dashboard-service/auth")

type State int32

const (
	Idle State = iota
	Pending
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "success"
	case Failed:
		return "failure"
	default:
		return "idle"
	}
}

type Options struct {
	// Latency is the simulated round trip of login and signup.
	Latency        time.Duration
	GoogleClientID string
	Classifier     role.Classifier
	Accounts       *Accounts
	Logger         *zap.Logger
	NewToken       func() string
}

type LoginInput struct {
	Identifier    string
	Secret        string
	RequestedRole string
}

type SignupInput struct {
	Email         string
	Secret        string
	ConfirmSecret string
	FirstName     string
	LastName      string
	Role          string
	Profile       models.Profile
}

// Result is what an operation hands back to its caller: the session it
// produced, where to go next and the message to show. On failure only
// Notice is set.
type Result struct {
	Session    models.Session
	Navigation nav.Navigation
	Notice     apperr.Notice
}

type Service struct {
	sessions session.Store
	opts     Options
	logger   *zap.Logger
	state    atomic.Int32
}

func New(sessions session.Store, opts Options) *Service {
	if opts.Classifier == nil {
		opts.Classifier = role.SubstringClassifier{}
	}
	if opts.NewToken == nil {
		opts.NewToken = newPlaceholderToken
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sessions: sessions, opts: opts, logger: logger}
}

func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) Login(ctx context.Context, in LoginInput) (Result, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	in.Identifier = strings.TrimSpace(in.Identifier)
	if in.Identifier == "" {
		return s.reject(span, apperr.Validation("email", "Email is required"))
	}
	if in.Secret == "" {
		return s.reject(span, apperr.Validation("password", "Password is required"))
	}
	if !s.begin() {
		return s.reject(span, errPending())
	}

	sess, err := s.authenticate(ctx, in)
	if err != nil {
		return s.fail(span, "login", err, "Login failed. Please try again.")
	}
	return s.succeed(ctx, span, "login", sess, "Login successful!")
}

func (s *Service) authenticate(ctx context.Context, in LoginInput) (models.Session, error) {
	if err := schedule.Sleep(ctx, s.opts.Latency); err != nil {
		return models.Session{}, apperr.Auth(apperr.CodeOperationCancelled, "Login was cancelled", err)
	}

	requested := strings.TrimSpace(in.RequestedRole)
	if s.opts.Accounts != nil {
		acct, err := s.opts.Accounts.Lookup(ctx, in.Identifier)
		switch {
		case err == nil:
			if err := s.opts.Accounts.Verify(acct, in.Secret); err != nil {
				return models.Session{}, apperr.Auth(apperr.CodeInvalidCredentials, "Invalid email or password", err)
			}
			if requested != "" && role.Normalize(requested) != acct.Role {
				return models.Session{}, apperr.Auth(apperr.CodeRoleMismatch, "This account is not registered as "+string(role.Normalize(requested)), nil)
			}
			return models.Session{
				UserID:      acct.ID,
				Email:       acct.Email,
				DisplayName: acct.Name,
				Role:        acct.Role,
				Token:       s.opts.NewToken(),
				Profile:     acct.Profile,
			}, nil
		case !errors.Is(err, ErrAccountNotFound):
			return models.Session{}, apperr.Auth("", "Login failed. Please try again.", err)
		}
	}

	raw := requested
	if raw == "" {
		raw = string(s.opts.Classifier.Classify(in.Identifier))
	}
	return models.Session{
		UserID:      userIDFor(in.Identifier),
		Email:       in.Identifier,
		DisplayName: displayNameFrom(in.Identifier),
		Role:        s.normalize(raw),
		Token:       s.opts.NewToken(),
	}, nil
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (Result, error) {
	ctx, span := tracer.Start(ctx, "auth.signup")
	defer span.End()

	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validateSignup(in); err != nil {
		return s.reject(span, err)
	}
	if !s.begin() {
		return s.reject(span, errPending())
	}

	if err := schedule.Sleep(ctx, s.opts.Latency); err != nil {
		return s.fail(span, "signup", apperr.Auth(apperr.CodeOperationCancelled, "Signup was cancelled", err), "")
	}

	r := s.normalize(in.Role)
	name := strings.TrimSpace(in.FirstName + " " + in.LastName)
	if name == "" {
		name = displayNameFrom(in.Email)
	}
	sess := models.Session{
		UserID:      userIDFor(in.Email),
		Email:       in.Email,
		DisplayName: name,
		Role:        r,
		Token:       s.opts.NewToken(),
		Profile:     trimProfile(in.Profile),
	}

	if s.opts.Accounts != nil {
		_, err := s.opts.Accounts.Register(ctx, Account{
			ID:      sess.UserID,
			Email:   sess.Email,
			Name:    sess.DisplayName,
			Role:    sess.Role,
			Profile: sess.Profile,
		}, in.Secret)
		if errors.Is(err, ErrAccountExists) {
			return s.fail(span, "signup", &apperr.Error{
				Kind:    apperr.KindValidation,
				Code:    apperr.CodeAlreadyRegistered,
				Field:   "email",
				Message: "An account with this email already exists",
			}, "")
		}
		if err != nil {
			return s.fail(span, "signup", apperr.Auth("", "Signup failed. Please try again.", err), "")
		}
	}

	return s.succeed(ctx, span, "signup", sess, "Account created successfully!")
}

// Logout clears the session and sends the caller to the login entry point.
// It is safe to call without a session.
func (s *Service) Logout(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer span.End()

	if err := s.sessions.Clear(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear session")
		s.logger.Error("logout failed to clear storage", zap.Error(err))
		wrapped := apperr.Auth("", "Logout could not clear stored data", err)
		return Result{Notice: apperr.NoticeFor(wrapped, "")}, wrapped
	}
	return Result{
		Notice:     apperr.Success("Logged out successfully"),
		Navigation: nav.Replace(nav.LoginPath),
	}, nil
}

func (s *Service) LoginWithGoogle(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "auth.login_google")
	defer span.End()

	if strings.TrimSpace(s.opts.GoogleClientID) == "" {
		return s.reject(span, apperr.Configuration("GOOGLE_CLIENT_ID", "Google Login not configured. Please set GOOGLE_CLIENT_ID"))
	}
	if !s.begin() {
		return s.reject(span, errPending())
	}

	sess := models.Session{
		UserID:      googleUserID,
		Email:       googleUserEmail,
		DisplayName: googleUserName,
		Role:        role.User,
		Token:       googleToken,
	}
	return s.succeed(ctx, span, "google", sess, "Logged in with Google")
}

func (s *Service) begin() bool {
	for {
		current := s.state.Load()
		if State(current) == Pending {
			return false
		}
		if s.state.CompareAndSwap(current, int32(Pending)) {
			return true
		}
	}
}

func (s *Service) succeed(ctx context.Context, span trace.Span, op string, sess models.Session, message string) (Result, error) {
	sess.Role = role.Normalize(string(sess.Role))
	if err := s.sessions.Set(ctx, sess); err != nil {
		return s.fail(span, op, apperr.Auth("", "Could not save your session. Please try again.", err), "")
	}
	s.state.Store(int32(Succeeded))

	span.SetAttributes(attribute.String("auth.role", string(sess.Role)))
	s.logger.Info("auth operation succeeded",
		zap.String("operation", op),
		zap.String("user_id", sess.UserID),
		zap.String("role", string(sess.Role)),
	)
	return Result{
		Session:    sess,
		Navigation: nav.Replace(nav.DashboardFor(sess.Role)),
		Notice:     apperr.Success(message),
	}, nil
}

func (s *Service) fail(span trace.Span, op string, err error, fallback string) (Result, error) {
	s.state.Store(int32(Failed))
	s.logger.Warn("auth operation failed",
		zap.String("operation", op),
		zap.String("kind", apperr.KindOf(err).String()),
		zap.Error(err),
	)
	return s.reject(span, err, fallback)
}

// reject reports an error without touching the operation state.
func (s *Service) reject(span trace.Span, err error, fallback ...string) (Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperr.CodeOf(err))
	text := ""
	if len(fallback) > 0 {
		text = fallback[0]
	}
	return Result{Notice: apperr.NoticeFor(err, text)}, err
}

func (s *Service) normalize(raw string) role.Role {
	r, known := role.Parse(raw)
	switch {
	case !known && strings.TrimSpace(raw) != "":
		s.logger.Warn("unknown role, using default", zap.String("role", raw), zap.String("default", string(r)))
	case role.IsAlias(raw):
		s.logger.Debug("role alias normalized", zap.String("alias", raw), zap.String("role", string(r)))
	}
	return r
}

func errPending() error {
	return apperr.Auth(apperr.CodeOperationPending, "Another sign-in is already in progress", nil)
}

func validateSignup(in SignupInput) error {
	switch {
	case in.FirstName == "":
		return apperr.Validation("firstName", "First name is required")
	case in.LastName == "":
		return apperr.Validation("lastName", "Last name is required")
	case in.Email == "":
		return apperr.Validation("email", "Email is required")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return apperr.Validation("email", "Email is invalid")
	}
	switch {
	case in.Secret == "":
		return apperr.Validation("password", "Password is required")
	case len(in.Secret) < minSecretLength:
		return apperr.Validation("password", "Password must be at least 8 characters")
	case in.ConfirmSecret != "" && in.ConfirmSecret != in.Secret:
		return apperr.Validation("confirmPassword", "Passwords do not match")
	}
	return nil
}

func trimProfile(p models.Profile) models.Profile {
	return models.Profile{
		StaffID:     strings.TrimSpace(p.StaffID),
		Department:  strings.TrimSpace(p.Department),
		Position:    strings.TrimSpace(p.Position),
		Institution: strings.TrimSpace(p.Institution),
	}
}
