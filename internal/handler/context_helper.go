package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rdc-learning-api/internal/middleware"
	"github.com/noah-isme/rdc-learning-api/internal/models"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// actingUser resolves whom a request acts for. Students act for themselves; staff may name another user.
func actingUser(c *gin.Context, requested string) (*models.JWTClaims, string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil, "", appErrors.ErrUnauthorized
	}
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == claims.UserID {
		return claims, claims.UserID, nil
	}
	if !claims.Role.IsStaff() {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "you can only act on your own account")
	}
	return claims, requested, nil
}

// canView reports whether the caller may read a record owned by ownerID.
func canView(claims *models.JWTClaims, ownerID string) bool {
	return claims != nil && (claims.UserID == ownerID || claims.Role.IsStaff())
}
