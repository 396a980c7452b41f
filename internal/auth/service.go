// Package auth provides the rate-limited admin password check and the
// session tokens guarding the publishing endpoints.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/ratelimit"
)

var (
	// ErrInvalidPassword is deliberately the only failure detail a caller
	// sees for a wrong password.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrNotConfigured means no admin password was set for this deployment.
	ErrNotConfigured = errors.New("admin password not configured")
)

// RateLimitedError reports that the client must wait before trying again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %s", e.RetryAfter.Round(time.Second))
}

// Service authenticates the single admin operator.
type Service struct {
	secret       []byte
	passwordHash string
	password     string
	limiter      ratelimit.Store
	ttl          time.Duration
	logger       *zap.Logger
}

// New builds the auth service. passwordHash is a bcrypt hash; password is the
// plaintext development fallback used only when no hash is configured.
func New(secret, passwordHash, password string, limiter ratelimit.Store, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		secret:       []byte(secret),
		passwordHash: passwordHash,
		password:     password,
		limiter:      limiter,
		ttl:          ttl,
		logger:       logger,
	}
}

// Session is a freshly issued admin session.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Login checks the password for the given client IP with the failure limit
// applied before the password compare, so a blocked client learns nothing
// about credential validity. A successful login clears the IP's counter.
func (s *Service) Login(ctx context.Context, password, clientIP string) (Session, error) {
	if s.passwordHash == "" && s.password == "" {
		return Session{}, ErrNotConfigured
	}

	retryAfter, err := s.limiter.RetryAfter(ctx, clientIP)
	if err != nil {
		return Session{}, fmt.Errorf("check rate limit: %w", err)
	}
	if retryAfter > 0 {
		return Session{}, &RateLimitedError{RetryAfter: retryAfter}
	}

	if !s.checkPassword(password) {
		count, err := s.limiter.RecordFailure(ctx, clientIP)
		if err != nil {
			s.logger.Warn("record login failure", zap.Error(err))
		} else {
			s.logger.Info("failed admin login", zap.String("client_ip", clientIP), zap.Int("failures", count))
		}
		return Session{}, ErrInvalidPassword
	}

	if err := s.limiter.Clear(ctx, clientIP); err != nil {
		s.logger.Warn("clear login failures", zap.Error(err))
	}

	expiresAt := time.Now().Add(s.ttl)
	token, err := IssueToken(s.secret, Claims{
		Sub: "admin",
		JTI: randomJTI(),
		Exp: expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue session token: %w", err)
	}
	return Session{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify reports whether the token identifies a live admin session.
func (s *Service) Verify(token string) error {
	_, err := ParseToken(s.secret, token)
	return err
}

func (s *Service) checkPassword(password string) bool {
	if s.passwordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.password), []byte(password)) == 1
}

func randomJTI() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
