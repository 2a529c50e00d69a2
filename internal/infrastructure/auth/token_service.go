package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	goaldomain "github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingActorID   = errors.New("missing actor_id in claims")
)

// ActorClaims are the JWT claims carried by an actor token. Capabilities
// use the domain's tags so minting and verification share one vocabulary.
type ActorClaims struct {
	jwt.RegisteredClaims
	ActorID      string   `json:"actor_id"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ActorTokenService mints and verifies capability-tagged actor tokens.
// Custody-side notifiers authenticate with these instead of a session.
type ActorTokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewActorTokenService creates a token service from configuration.
func NewActorTokenService(cfg config.JWTConfig) *ActorTokenService {
	return &ActorTokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
	}
}

// Mint signs a token for the given actor identity and capabilities.
func (s *ActorTokenService) Mint(actorID uuid.UUID, caps ...goaldomain.Capability) (string, error) {
	now := time.Now()
	capStrings := make([]string, len(caps))
	for i, c := range caps {
		capStrings[i] = string(c)
	}

	claims := &ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   actorID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ActorID:      actorID.String(),
		Capabilities: capStrings,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyActorToken validates a token and returns the capability-tagged
// actor it encodes. Implements the application's ActorTokenVerifier.
func (s *ActorTokenService) VerifyActorToken(ctx context.Context, tokenString string) (goaldomain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return goaldomain.Actor{}, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return goaldomain.Actor{}, ErrTokenNotYetValid
		default:
			return goaldomain.Actor{}, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return goaldomain.Actor{}, ErrInvalidClaims
	}
	if claims.ActorID == "" {
		return goaldomain.Actor{}, ErrMissingActorID
	}
	actorID, err := uuid.Parse(claims.ActorID)
	if err != nil {
		return goaldomain.Actor{}, ErrInvalidClaims
	}

	caps := make([]goaldomain.Capability, len(claims.Capabilities))
	for i, c := range claims.Capabilities {
		caps[i] = goaldomain.Capability(c)
	}
	return goaldomain.NewActor(actorID, caps...), nil
}

// TTL returns the configured token lifetime.
func (s *ActorTokenService) TTL() time.Duration {
	return s.ttl
}
