package interviews

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-hire/backend/internal/middleware"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/pkg/response"
)

// ContextInterview holds the *models.Interview loaded by RequireAccess.
const ContextInterview = "interview"

// Getter loads one interview.
type Getter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Interview, error)
}

// RequireAccess loads the :id interview and lets through reviewers and the
// interview's own candidate. Invite tokens are additionally limited to the
// interview they were issued for. Call after JWT.
func RequireAccess(store Getter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid interview id")
			c.Abort()
			return
		}
		iv, err := store.GetByID(c.Request.Context(), id)
		if err != nil {
			response.Internal(c, "failed to load interview")
			c.Abort()
			return
		}
		if iv == nil {
			response.NotFound(c, "interview not found")
			c.Abort()
			return
		}
		if !CanAccess(c, iv) {
			response.Forbidden(c, "not authorized for this interview")
			c.Abort()
			return
		}
		c.Set(ContextInterview, iv)
		c.Next()
	}
}

// CanAccess applies the RequireAccess rules to an already loaded interview.
func CanAccess(c *gin.Context, iv *models.Interview) bool {
	if scope, ok := middleware.InterviewScope(c); ok && scope != iv.ID {
		return false
	}
	if middleware.UserRole(c).CanReview() {
		return true
	}
	userID, ok := middleware.UserID(c)
	return ok && iv.BelongsTo(userID)
}

func interviewFrom(c *gin.Context) *models.Interview {
	return c.MustGet(ContextInterview).(*models.Interview)
}
