package remote

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL  = 30 * time.Minute
	tokenRefreshSlop = time.Minute
)

var errMissingSigningSecret = errors.New("signing secret must be provided")

// TokenSource yields a bearer token for remote store requests.
type TokenSource interface {
	Token() (string, error)
}

// HS256TokenConfig configures the HMAC token source.
type HS256TokenConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	Subject       string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// HS256TokenSource mints short-lived HS256 bearer tokens identifying the
// agent, re-minting shortly before expiry.
type HS256TokenSource struct {
	config HS256TokenConfig
	clock  func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewHS256TokenSource constructs a token source with sane defaults.
func NewHS256TokenSource(cfg HS256TokenConfig) *HS256TokenSource {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &HS256TokenSource{config: cfg, clock: clock}
}

// Token returns a cached token or mints a fresh one.
func (s *HS256TokenSource) Token() (string, error) {
	if len(s.config.SigningSecret) == 0 {
		return "", errMissingSigningSecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	if s.cached != "" && now.Before(s.expiresAt.Add(-tokenRefreshSlop)) {
		return s.cached, nil
	}

	expiresAt := now.Add(s.config.TokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   s.config.Subject,
		Issuer:    s.config.Issuer,
		Audience:  []string{s.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.SigningSecret)
	if err != nil {
		return "", err
	}

	s.cached = signed
	s.expiresAt = expiresAt
	return signed, nil
}
