package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/user"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *Manager, *user.User) {
	t.Helper()
	m, u := newTestManager(t)

	r := gin.New()
	protected := r.Group("/", Middleware(m))
	protected.GET("/whoami", func(c *gin.Context) {
		p := MustPrincipal(c)
		if p == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": p.ID, "role": string(p.Role)})
	})
	admin := protected.Group("/admin", RequireAdmin())
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, m, u
}

func doRequest(r *gin.Engine, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareMissingToken(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "auth_required", body.Error.Code)
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	r, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareValidToken(t *testing.T) {
	r, m, u := setupRouter(t)

	pair, err := m.Issue(context.Background(), u, DeviceInfo{})
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/whoami", pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, u.ID, body.ID)
	assert.Equal(t, "shop_owner", body.Role)
}

func TestMiddlewareInvalidToken(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/whoami", "bogus.token.here")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdminForbidsShopRole(t *testing.T) {
	r, m, u := setupRouter(t)

	pair, err := m.Issue(context.Background(), u, DeviceInfo{})
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/admin/ping", pair.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAdminAllowsAdmin(t *testing.T) {
	users := user.NewMemoryStore()
	ctx := context.Background()
	admin := &user.User{ID: "usr_adm", Email: "adm@x.com", Role: user.RoleAdmin,
		Status: user.StatusActive, ReferralCode: "ADM1"}
	require.NoError(t, users.Create(ctx, admin))
	m := NewManager(NewMemoryStore(), users, Config{Secret: testSecret})

	r := gin.New()
	protected := r.Group("/", Middleware(m))
	protected.GET("/admin/ping", RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	pair, err := m.Issue(ctx, admin, DeviceInfo{})
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/admin/ping", pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
}
