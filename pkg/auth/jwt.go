package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user and the organization selected for the session.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID  `json:"uid"`
	Email  string     `json:"email"`
	OrgID  *uuid.UUID `json:"org_id,omitempty"`
}

// Identity converts the claims to the request principal.
func (c *Claims) Identity() *model.Identity {
	return &model.Identity{UserID: c.UserID, Email: c.Email, OrgID: c.OrgID}
}

type JWTService interface {
	// GenerateAccessToken issues a token for user; orgID may be nil.
	GenerateAccessToken(user *model.User, orgID *uuid.UUID) (string, time.Duration, error)
	ValidateToken(token string) (*Claims, error)
}

type jwtService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService signs with HS256. An empty secret is replaced by a random
// key that lives as long as the process.
func NewJWTService(secret, issuer string, ttl time.Duration) (JWTService, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &jwtService{secret: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

func (s *jwtService) GenerateAccessToken(user *model.User, orgID *uuid.UUID) (string, time.Duration, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		UserID: user.ID,
		Email:  user.Email,
		OrgID:  orgID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, s.ttl, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
