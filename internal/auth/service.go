package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-capital/atlas-portal/internal/identity"
	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/shared"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, name, link string) error
}

// ServiceOptions carries the collaborators of Service. Nil collaborators
// disable the feature they back.
type ServiceOptions struct {
	Broadcaster   *Broadcaster
	ResetTokens   *ResetTokens
	Mailer        Mailer
	SessionTTL    time.Duration
	PublicBaseURL string
	Logger        *slog.Logger
}

// Service wraps authentication business rules and implements session.Store.
type Service struct {
	repo        Repository
	broadcaster *Broadcaster
	resets      *ResetTokens
	mailer      Mailer
	ttl         time.Duration
	baseURL     string
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		repo:        repo,
		broadcaster: opts.Broadcaster,
		resets:      opts.ResetTokens,
		mailer:      opts.Mailer,
		ttl:         ttl,
		baseURL:     strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:      logger,
		now:         time.Now,
	}
}

// CurrentSession resolves token to the identity bound to it. Unknown and
// expired tokens resolve to Absent.
func (s *Service) CurrentSession(ctx context.Context, token string) (identity.State, error) {
	if strings.TrimSpace(token) == "" {
		return identity.Absent(), nil
	}
	account, err := s.repo.FindBySession(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return identity.Absent(), nil
		}
		return identity.State{}, fmt.Errorf("auth: current session: %w", err)
	}
	return identity.Present(account.Identity()), nil
}

// Subscribe delivers later changes for token.
func (s *Service) Subscribe(token string, fn func(identity.State)) func() {
	if s.broadcaster == nil {
		return func() {}
	}
	return s.broadcaster.Subscribe(token, fn)
}

// SignIn validates credentials and binds the account to token.
func (s *Service) SignIn(ctx context.Context, token, email, password string) (identity.Identity, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(email) == "" || password == "" {
		return identity.Identity{}, session.Fail(session.ReasonInvalidInput, nil)
	}
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return identity.Identity{}, session.Fail(session.ReasonInvalidCredentials, shared.ErrInvalidCredentials)
		}
		return identity.Identity{}, session.Fail(session.ReasonUnavailable, err)
	}
	if !account.IsActive {
		return identity.Identity{}, session.Fail(session.ReasonInvalidCredentials, shared.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return identity.Identity{}, session.Fail(session.ReasonInvalidCredentials, shared.ErrInvalidCredentials)
	}
	if err := s.bind(ctx, token, account); err != nil {
		return identity.Identity{}, err
	}
	return account.Identity(), nil
}

// SignUp creates an account with a client profile and signs it in.
func (s *Service) SignUp(ctx context.Context, token, email, password, name string) (identity.Identity, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(email) == "" {
		return identity.Identity{}, session.Fail(session.ReasonInvalidInput, nil)
	}
	if len(password) < MinPasswordLength {
		return identity.Identity{}, session.Fail(session.ReasonWeakPassword, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return identity.Identity{}, session.Fail(session.ReasonUnavailable, err)
	}
	account, err := s.repo.CreateAccount(ctx, NewAccount{Email: email, PasswordHash: string(hash), FullName: name})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return identity.Identity{}, session.Fail(session.ReasonDuplicateAccount, err)
		}
		return identity.Identity{}, session.Fail(session.ReasonUnavailable, err)
	}
	if err := s.bind(ctx, token, account); err != nil {
		return identity.Identity{}, err
	}
	return account.Identity(), nil
}

// SignOut unbinds token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.repo.DeleteSession(ctx, token); err != nil {
		return session.Fail(session.ReasonUnavailable, err)
	}
	s.publish(ctx, token, identity.Absent())
	return nil
}

// ResetPassword sends a reset link to email. Unknown emails succeed without
// sending anything.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return session.Fail(session.ReasonInvalidInput, nil)
	}
	if s.resets == nil || s.mailer == nil {
		return session.Fail(session.ReasonUnavailable, errors.New("password reset not configured"))
	}
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Debug("password reset for unknown email")
			return nil
		}
		return session.Fail(session.ReasonUnavailable, err)
	}
	if !account.IsActive {
		return nil
	}
	token, err := s.resets.Issue(*account)
	if err != nil {
		return session.Fail(session.ReasonUnavailable, err)
	}
	link := s.baseURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, account.Email, account.Identity().Greeting(), link); err != nil {
		return session.Fail(session.ReasonUnavailable, err)
	}
	return nil
}

// CompleteReset sets a new password using a token issued by ResetPassword.
// Every session of the account is revoked.
func (s *Service) CompleteReset(ctx context.Context, token, password string) error {
	if s.resets == nil {
		return session.Fail(session.ReasonUnavailable, errors.New("password reset not configured"))
	}
	if len(password) < MinPasswordLength {
		return session.Fail(session.ReasonWeakPassword, nil)
	}
	userID, fp, err := s.resets.Parse(token)
	if err != nil {
		return session.Fail(session.ReasonInvalidInput, err)
	}
	account, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return session.Fail(session.ReasonInvalidInput, shared.ErrInvalidToken)
		}
		return session.Fail(session.ReasonUnavailable, err)
	}
	if !s.resets.Matches(*account, fp) {
		return session.Fail(session.ReasonInvalidInput, shared.ErrInvalidToken)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return session.Fail(session.ReasonUnavailable, err)
	}
	revoked, err := s.repo.UpdatePassword(ctx, account.ID, string(hash))
	if err != nil {
		return session.Fail(session.ReasonUnavailable, err)
	}
	for _, id := range revoked {
		s.publish(ctx, id, identity.Absent())
	}
	return nil
}

// RevokeUser signs the user out of every session.
func (s *Service) RevokeUser(ctx context.Context, userID uuid.UUID) error {
	revoked, err := s.repo.DeleteUserSessions(ctx, userID)
	if err != nil {
		return fmt.Errorf("auth: revoke sessions: %w", err)
	}
	for _, id := range revoked {
		s.publish(ctx, id, identity.Absent())
	}
	return nil
}

func (s *Service) bind(ctx context.Context, token string, account *Account) error {
	ip, ua := ClientInfoFromContext(ctx)
	record := SessionRecord{
		ID:        token,
		UserID:    account.ID,
		ExpiresAt: s.now().Add(s.ttl),
		IP:        ip,
		UA:        ua,
	}
	if err := s.repo.CreateSession(ctx, record); err != nil {
		return session.Fail(session.ReasonUnavailable, err)
	}
	s.publish(ctx, token, identity.Present(account.Identity()))
	return nil
}

func (s *Service) publish(ctx context.Context, token string, state identity.State) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(ctx, token, state)
	}
}

type clientInfoKey struct{}

type clientInfo struct {
	ip string
	ua string
}

// WithClientInfo attaches the caller's address and user agent for session auditing.
func WithClientInfo(ctx context.Context, ip, ua string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, clientInfo{ip: ip, ua: ua})
}

// ClientInfoFromContext returns the values stored by WithClientInfo.
func ClientInfoFromContext(ctx context.Context) (ip, ua string) {
	info, _ := ctx.Value(clientInfoKey{}).(clientInfo)
	return info.ip, info.ua
}

var _ session.Store = (*Service)(nil)
