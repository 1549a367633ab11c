package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTokenTTL  = 24 * time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	tokenUseRefresh = "refresh"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	ErrMissingActorID       = errors.New("auth: actor id must be provided")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrExpiredToken         = errors.New("auth: token expired")
	ErrRefreshTokenUse      = errors.New("auth: refresh token not valid for access")
)

// Actor is the authenticated identity carried inside issued tokens.
type Actor struct {
	ID       int64
	Username string
	Email    string
	FullName string
	IsAdmin  bool
}

// ActorClaims is the JWT payload for both access and refresh tokens. Refresh
// tokens carry only the identity fields plus TokenUse = "refresh".
type ActorClaims struct {
	ActorID  int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullname,omitempty"`
	IsAdmin  bool   `json:"isAdmin,omitempty"`
	TokenUse string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the HS256 token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and validates the backend's bearer tokens.
type TokenIssuer struct {
	config TokenIssuerConfig
	clock  func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg.Clock = clock
	return &TokenIssuer{config: cfg, clock: clock}
}

// IssueAccessToken produces a signed JWT carrying the full actor identity.
func (i *TokenIssuer) IssueAccessToken(actor Actor) (string, error) {
	return i.sign(actor, "", i.config.AccessTTL)
}

// IssueRefreshToken produces a longer-lived token restricted to renewal.
func (i *TokenIssuer) IssueRefreshToken(actor Actor) (string, error) {
	return i.sign(actor, tokenUseRefresh, i.config.RefreshTTL)
}

func (i *TokenIssuer) sign(actor Actor, tokenUse string, ttl time.Duration) (string, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", ErrMissingSigningSecret
	}
	if actor.ID == 0 {
		return "", ErrMissingActorID
	}

	now := i.clock().UTC()
	claims := ActorClaims{
		ActorID:  actor.ID,
		Username: actor.Username,
		Email:    actor.Email,
		FullName: actor.FullName,
		IsAdmin:  actor.IsAdmin,
		TokenUse: tokenUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", actor.ID),
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if tokenUse == tokenUseRefresh {
		claims.Email = ""
		claims.FullName = ""
		claims.IsAdmin = false
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.config.SigningSecret)
}

// ValidateAccessToken checks signature, expiry, and issuer, and rejects
// refresh tokens presented as access credentials.
func (i *TokenIssuer) ValidateAccessToken(tokenString string) (ActorClaims, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return ActorClaims{}, err
	}
	if claims.TokenUse == tokenUseRefresh {
		return ActorClaims{}, ErrRefreshTokenUse
	}
	return claims, nil
}

// ValidateRefreshToken checks a renewal token and returns its claims.
func (i *TokenIssuer) ValidateRefreshToken(tokenString string) (ActorClaims, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return ActorClaims{}, err
	}
	if claims.TokenUse != tokenUseRefresh {
		return ActorClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (i *TokenIssuer) parse(tokenString string) (ActorClaims, error) {
	if len(i.config.SigningSecret) == 0 {
		return ActorClaims{}, ErrMissingSigningSecret
	}

	claims := &ActorClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, token.Method.Alg())
			}
			return i.config.SigningSecret, nil
		},
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ActorClaims{}, ErrExpiredToken
		}
		return ActorClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return ActorClaims{}, ErrInvalidToken
	}
	if claims.ActorID == 0 {
		return ActorClaims{}, ErrMissingActorID
	}
	return *claims, nil
}
