package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soaringjerry/evibench/internal/logger"
	"github.com/soaringjerry/evibench/internal/models"
)

// LoginStore persists first-login records.
type LoginStore interface {
	FindLogin(ctx context.Context, email string) (*models.LoginRecord, error)
	InsertLogin(ctx context.Context, rec *models.LoginRecord) error
}

// LoginService is the gate in front of the wizard: an email on the dataset
// allow-list is the only credential.
type LoginService struct {
	store   LoginStore
	data    DatasetSource
	timeout time.Duration
	now     func() time.Time
	log     *logger.Logger
}

func NewLoginService(store LoginStore, data DatasetSource, timeout time.Duration, log *logger.Logger) *LoginService {
	if log == nil {
		log = logger.Nop()
	}
	return &LoginService{
		store:   store,
		data:    data,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// Login validates raw against the allow-list, records the first login and
// authenticates sess. Nothing is written and sess is untouched on failure.
func (s *LoginService) Login(ctx context.Context, sess *Session, raw string) error {
	if sess == nil {
		return errors.New("login: nil session")
	}
	email := NormalizeEmail(raw)
	if email == "" {
		return NewInvalidError(MsgEmailRequired)
	}
	if !s.data.Dataset().Approved(email) {
		s.log.Info("login rejected", "email", email)
		return NewForbiddenError(MsgEmailNotApproved)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	existing, err := s.store.FindLogin(ctx, email)
	if err != nil {
		s.log.Error("find login failed", "email", email, "error", err)
		return NewUnavailableError(fmt.Errorf("find login: %w", err))
	}
	if existing == nil {
		err := s.store.InsertLogin(ctx, &models.LoginRecord{Email: email, CreatedAt: s.now()})
		switch {
		case errors.Is(err, ErrDuplicate):
			// a concurrent first login won the race
		case err != nil:
			s.log.Error("insert login failed", "email", email, "error", err)
			return NewUnavailableError(fmt.Errorf("insert login: %w", err))
		default:
			s.log.Info("first login recorded", "email", email)
		}
	}

	now := s.now()
	sess.LoggedIn = true
	sess.Email = email
	sess.ResetProgress(now)
	return nil
}

// Logout clears authentication. It has no persistence side effect.
func (s *LoginService) Logout(sess *Session) {
	if sess == nil {
		return
	}
	if sess.LoggedIn {
		s.log.Info("logout", "email", sess.Email)
	}
	sess.Logout(s.now())
}
