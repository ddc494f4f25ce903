package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AuthService issues and verifies session tokens and hashes passwords.
type AuthService struct {
	secret     []byte
	expiresIn  time.Duration
	bcryptCost int
	now        func() time.Time
}

type AuthOption func(*AuthService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.bcryptCost = cost }
}

func NewAuthService(secret string, expiresIn time.Duration, opts ...AuthOption) *AuthService {
	s := &AuthService{
		secret:     []byte(secret),
		expiresIn:  expiresIn,
		bcryptCost: DefaultBcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Now() time.Time {
	return s.now()
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AuthService) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// sessionClaims adds the issue time in milliseconds to the standard
// claims, whose iat only has second precision.
type sessionClaims struct {
	jwt.RegisteredClaims
	IssuedAtMillis int64 `json:"iat_ms,omitempty"`
}

// SignToken issues an HS256 token whose subject is the user id.
func (s *AuthService) SignToken(userID string) (string, error) {
	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
		},
		IssuedAtMillis: now.UnixMilli(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken returns the user id and issue time of a valid token, to the
// millisecond. Failures are ErrTokenExpired or ErrTokenInvalid.
func (s *AuthService) ParseToken(tokenString string) (string, time.Time, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", time.Time{}, ErrTokenExpired
		}
		return "", time.Time{}, ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return "", time.Time{}, ErrTokenInvalid
	}
	if claims.IssuedAtMillis > 0 {
		return claims.Subject, time.UnixMilli(claims.IssuedAtMillis).UTC(), nil
	}
	return claims.Subject, claims.IssuedAt.Time, nil
}
