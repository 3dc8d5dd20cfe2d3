package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("identity token is missing")
	ErrInvalidToken = errors.New("identity token is invalid")
)

// Identity is an opaque, stable value scoping order ownership
type Identity string

// Provider resolves the identity of the current user
type Provider interface {
	Resolve(ctx context.Context) (Identity, error)
}

// AnonymousProvider issues a fresh random identity
type AnonymousProvider struct{}

// Resolve returns a new uuid identity
func (AnonymousProvider) Resolve(ctx context.Context) (Identity, error) {
	return Identity(uuid.New().String()), nil
}

// TokenProvider resolves the subject of an HS256-signed JWT
type TokenProvider struct {
	secret []byte
	token  string
}

// NewTokenProvider creates a provider validating token with secret
func NewTokenProvider(secret, token string) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), token: token}
}

// Resolve validates the token and returns its subject
func (p *TokenProvider) Resolve(ctx context.Context) (Identity, error) {
	if p.token == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(p.token, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return Identity(claims.Subject), nil
}

// Session carries the outcome of identity bootstrap. The zero value is not ready.
type Session struct {
	mu       sync.RWMutex
	identity Identity
	ready    bool
}

// NewSession returns a session that is not ready
func NewSession() *Session {
	return &Session{}
}

// ReadySession returns a session already resolved to id
func ReadySession(id Identity) *Session {
	return &Session{identity: id, ready: true}
}

// Identity returns the resolved identity, or models.ErrNotReady
func (s *Session) Identity() (Identity, error) {
	if s == nil {
		return "", models.ErrNotReady
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return "", models.ErrNotReady
	}
	return s.identity, nil
}

// Ready reports whether bootstrap has completed
func (s *Session) Ready() bool {
	_, err := s.Identity()
	return err == nil
}

func (s *Session) resolve(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.ready = true
}

// Bootstrap resolves the session through primary. When primary fails it
// falls back to a locally generated anonymous identity, so the session is
// always ready on return unless ctx is done.
func (s *Session) Bootstrap(ctx context.Context, primary Provider) (Identity, error) {
	logger := util.GetLogger()

	if primary != nil {
		id, err := primary.Resolve(ctx)
		if err == nil && id != "" {
			s.resolve(id)
			return id, nil
		}
		logger.Warn("Identity provider failed, using anonymous identity", zap.Error(err))
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrNotReady, err)
	}

	id, err := AnonymousProvider{}.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrNotReady, err)
	}
	s.resolve(id)
	return id, nil
}
