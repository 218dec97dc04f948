package shop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/user"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordedEvent struct {
	actorID string
	kind    string
	details map[string]any
}

type fakeSecurity struct {
	events []recordedEvent
}

func (f *fakeSecurity) Security(_ context.Context, actorID, kind string, details map[string]any) {
	f.events = append(f.events, recordedEvent{actorID: actorID, kind: kind, details: details})
}

func gateRouter(t *testing.T, m *Manager, sec SecurityRecorder, p *auth.Principal) *gin.Engine {
	t.Helper()
	r := gin.New()
	group := r.Group("/api/shops/:shopId")
	group.Use(func(c *gin.Context) {
		if p != nil {
			c.Set(auth.ContextKeyPrincipal, p)
			c.Set(auth.ContextKeyPrincipalID, p.ID)
		}
		c.Next()
	})
	group.Use(Gate(m, sec))
	group.GET("/probe", func(c *gin.Context) {
		s, ok := FromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"shopId": s.ID})
	})
	return r
}

func activeShop(t *testing.T, m *Manager) *Shop {
	t.Helper()
	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_owner", Name: "바람 헤어"})
	require.NoError(t, err)
	return approveShop(t, m, s.ID, 1)
}

func TestGatePassesMatchingShopPrincipal(t *testing.T) {
	m := newTestManager()
	s := activeShop(t, m)
	r := gateRouter(t, m, &fakeSecurity{}, &auth.Principal{
		ID: "usr_owner", Role: user.RoleShopOwner, ShopID: s.ID,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/"+s.ID+"/probe", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGatePassesCustomerIntoAnyShop(t *testing.T) {
	m := newTestManager()
	s := activeShop(t, m)
	sec := &fakeSecurity{}
	r := gateRouter(t, m, sec, &auth.Principal{ID: "usr_cust", Role: user.RoleCustomer})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/"+s.ID+"/probe", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sec.events)
}

func TestGateBlocksCrossShopAccess(t *testing.T) {
	m := newTestManager()
	s := activeShop(t, m)
	sec := &fakeSecurity{}
	r := gateRouter(t, m, sec, &auth.Principal{
		ID: "usr_other", Role: user.RoleShopOwner, ShopID: "shp_other",
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/"+s.ID+"/probe", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "forbidden_cross_shop", body.Error.Code)

	require.Len(t, sec.events, 1)
	assert.Equal(t, "usr_other", sec.events[0].actorID)
	assert.Equal(t, "unauthorized_shop_access_attempt", sec.events[0].kind)
	assert.Equal(t, s.ID, sec.events[0].details["attemptedShopId"])
	assert.Equal(t, "shp_other", sec.events[0].details["principalShopId"])
}

func TestGateAllowsAdminAcrossShops(t *testing.T) {
	m := newTestManager()
	s := activeShop(t, m)
	sec := &fakeSecurity{}
	r := gateRouter(t, m, sec, &auth.Principal{ID: "adm_1", Role: user.RoleAdmin})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/"+s.ID+"/probe", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sec.events)
}

func TestGateRejectsMalformedShopID(t *testing.T) {
	m := newTestManager()
	r := gateRouter(t, m, &fakeSecurity{}, &auth.Principal{ID: "usr_1", Role: user.RoleCustomer})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/shp%20bad/probe", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateRejectsUnknownShop(t *testing.T) {
	m := newTestManager()
	r := gateRouter(t, m, &fakeSecurity{}, &auth.Principal{ID: "adm_1", Role: user.RoleAdmin})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/shp_missing/probe", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateBlocksSuspendedShop(t *testing.T) {
	m := newTestManager()
	s := activeShop(t, m)
	_, err := m.UpdateStatus(context.Background(), "adm_1", s.ID, StatusSuspended, "")
	require.NoError(t, err)
	r := gateRouter(t, m, &fakeSecurity{}, &auth.Principal{
		ID: "usr_owner", Role: user.RoleShopOwner, ShopID: s.ID,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/"+s.ID+"/probe", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGateRequiresPrincipal(t *testing.T) {
	m := newTestManager()
	s := activeShop(t, m)
	r := gateRouter(t, m, &fakeSecurity{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shops/"+s.ID+"/probe", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
