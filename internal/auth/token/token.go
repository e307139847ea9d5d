// Package token keeps the backend bearer token for a session and checks its
// expiry locally. Signatures are never verified here; the backend owns that.
package token

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/clock"
	"github.com/smallbiznis/kasira/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultExpiryMargin = 30 * time.Second

var Module = fx.Module("auth.token",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Sessions session.Store
	Clock    clock.Clock
	Config   config.Config
	Log      *zap.Logger `optional:"true"`
}

// Store persists the token under the auth_token session key.
type Store struct {
	sessions session.Store
	clock    clock.Clock
	margin   time.Duration
	log      *zap.Logger
	parser   *jwt.Parser
}

func New(p Params) *Store {
	return NewStore(p.Sessions, p.Clock, p.Config.Session.TokenExpiryMargin, p.Log)
}

func NewStore(sessions session.Store, clk clock.Clock, margin time.Duration, log *zap.Logger) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if margin <= 0 {
		margin = DefaultExpiryMargin
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		sessions: sessions,
		clock:    clk,
		margin:   margin,
		log:      log.Named("auth.token"),
		parser:   jwt.NewParser(),
	}
}

func (s *Store) Set(ctx context.Context, sid, token string) error {
	return s.sessions.Set(ctx, sid, session.KeyAuthToken, strings.TrimSpace(token))
}

// Get returns the stored token. Storage failures read as absent.
func (s *Store) Get(ctx context.Context, sid string) (string, bool) {
	if sid == "" {
		return "", false
	}
	token, ok, err := s.sessions.Get(ctx, sid, session.KeyAuthToken)
	if err != nil {
		s.log.Warn("read token failed", zap.Error(err))
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Remove is idempotent.
func (s *Store) Remove(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sid, session.KeyAuthToken)
}

func (s *Store) HasValid(ctx context.Context, sid string) bool {
	token, ok := s.Get(ctx, sid)
	if !ok {
		return false
	}
	return s.Valid(token)
}

// Initialize drops a stored token that is no longer locally valid and reports whether it did.
func (s *Store) Initialize(ctx context.Context, sid string) bool {
	token, ok := s.Get(ctx, sid)
	if !ok || s.Valid(token) {
		return false
	}
	if err := s.Remove(ctx, sid); err != nil {
		s.log.Warn("remove invalid token failed", zap.Error(err))
		return false
	}
	return true
}

// Payload returns the decoded claims of the stored token, or nil.
func (s *Store) Payload(ctx context.Context, sid string) map[string]any {
	token, ok := s.Get(ctx, sid)
	if !ok {
		return nil
	}
	claims, err := s.claims(token)
	if err != nil {
		return nil
	}
	return claims
}

// Valid reports whether token carries an exp claim later than now plus the margin.
// Fractional exp values are compared without rounding.
func (s *Store) Valid(token string) bool {
	exp, ok := s.expSeconds(token)
	if !ok {
		return false
	}
	deadline := s.clock.Now().Add(s.margin)
	return exp > float64(deadline.UnixNano())/float64(time.Second)
}

// ExpiresAt reads the exp claim without verifying the signature.
func (s *Store) ExpiresAt(token string) (time.Time, bool) {
	exp, ok := s.expSeconds(token)
	if !ok {
		return time.Time{}, false
	}
	whole, frac := math.Modf(exp)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), true
}

// expSeconds returns the raw exp claim in seconds since the epoch.
func (s *Store) expSeconds(token string) (exp float64, ok bool) {
	defer func() {
		if recover() != nil {
			exp, ok = 0, false
		}
	}()
	claims, err := s.claims(token)
	if err != nil {
		return 0, false
	}
	switch v := claims["exp"].(type) {
	case float64:
		exp = v
	case json.Number:
		if exp, err = v.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(exp) || math.IsInf(exp, 0) {
		return 0, false
	}
	return exp, true
}

func (s *Store) claims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return nil, err
	}
	return claims, nil
}
