package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-hire/backend/internal/auth"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextInterviewScope holds the interview an invite token is bound to.
	ContextInterviewScope = "interview_scope"
)

// JWT returns a middleware that validates the bearer token and sets user
// claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		SetClaims(c, claims)
		c.Next()
	}
}

// SetClaims stores validated claims in the gin context.
func SetClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUserRole, models.Role(claims.Role))
	c.Set(ContextUserEmail, claims.Email)
	if claims.InterviewID != nil {
		c.Set(ContextInterviewScope, *claims.InterviewID)
	}
}

// UserID returns the authenticated user ID.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// UserRole returns the authenticated role, or "" when unauthenticated.
func UserRole(c *gin.Context) models.Role {
	v, _ := c.Get(ContextUserRole)
	role, _ := v.(models.Role)
	return role
}

// InterviewScope returns the interview an invite token is limited to.
func InterviewScope(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextInterviewScope)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
