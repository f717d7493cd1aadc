package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newRouter(claims *models.JWTClaims, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWT(stubValidator{claims: claims})}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/users/:id", chain...)
	return r
}

func do(r http.Handler, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWT(t *testing.T) {
	r := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent})

	assert.Equal(t, http.StatusUnauthorized, do(r, "/users/u1", ""))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/users/u1", "bad"))
	assert.Equal(t, http.StatusOK, do(r, "/users/u1", "good"))
}

func TestRBACSelfAndStaff(t *testing.T) {
	student := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, RBAC(RoleSelf, string(models.RoleAdmin)))
	assert.Equal(t, http.StatusOK, do(student, "/users/u1", "good"))
	assert.Equal(t, http.StatusForbidden, do(student, "/users/u2", "good"))

	seller := newRouter(&models.JWTClaims{UserID: "s1", Role: models.RoleSeller}, RequireStaff())
	assert.Equal(t, http.StatusOK, do(seller, "/users/u2", "good"))

	tutor := newRouter(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}, RequireStaff())
	assert.Equal(t, http.StatusForbidden, do(tutor, "/users/u2", "good"))
}

func TestAuditLogsSuccessfulRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newRouter(&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, Audit(zap.New(core), "update", "user"))

	assert.Equal(t, http.StatusOK, do(r, "/users/u9", "good"))
	entries := logs.FilterMessage("audit").All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "admin-1", ctx["actor_id"])
		assert.Equal(t, "u9", ctx["resource_id"])
	}

	assert.Equal(t, http.StatusUnauthorized, do(r, "/users/u9", "bad"))
	assert.Len(t, logs.FilterMessage("audit").All(), 1)
}
