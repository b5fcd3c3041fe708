package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims including user ID and role. InterviewID is set on
// candidate invite tokens and limits them to that interview.
type Claims struct {
	UserID      uuid.UUID  `json:"user_id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	InterviewID *uuid.UUID `json:"interview_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret            []byte
	expireHours       int
	inviteExpireHours int
	now               func() time.Time
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours, inviteExpireHours int) *JWTService {
	return &JWTService{
		secret:            []byte(secret),
		expireHours:       expireHours,
		inviteExpireHours: inviteExpireHours,
		now:               time.Now,
	}
}

// Generate creates a new JWT for the user.
func (s *JWTService) Generate(userID uuid.UUID, email, role string) (string, error) {
	return s.sign(Claims{UserID: userID, Email: email, Role: role}, s.expireHours)
}

// GenerateInvite creates a candidate token bound to one interview.
func (s *JWTService) GenerateInvite(userID uuid.UUID, email string, interviewID uuid.UUID) (string, error) {
	return s.sign(Claims{UserID: userID, Email: email, Role: "candidate", InterviewID: &interviewID}, s.inviteExpireHours)
}

func (s *JWTService) sign(claims Claims, hours int) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(hours) * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
