package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testCtx(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return body
}

func TestOK_Envelope(t *testing.T) {
	c, w := testCtx(t)
	OK(c, http.StatusCreated, gin.H{"id": "rsv_123"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != true {
		t.Error("expected success=true")
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["id"] != "rsv_123" {
		t.Errorf("unexpected data: %#v", body["data"])
	}
}

func TestFail_CodedError(t *testing.T) {
	c, w := testCtx(t)
	Fail(c, errs.E(errs.KindConflictSlot, "time slot is no longer available"))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false {
		t.Error("expected success=false")
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "conflict_slot" {
		t.Errorf("expected conflict_slot, got %v", errObj["code"])
	}
	if errObj["message"] != "time slot is no longer available" {
		t.Errorf("unexpected message: %v", errObj["message"])
	}
	if _, ok := errObj["timestamp"]; !ok {
		t.Error("expected timestamp in error body")
	}
}

func TestFail_InternalRedacted(t *testing.T) {
	c, w := testCtx(t)
	ctx := logging.WithRequestID(c.Request.Context(), "req-abc")
	c.Request = c.Request.WithContext(ctx)

	Fail(c, errors.New("pq: connection refused at 10.0.0.5:5432"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Error("internal error detail leaked to client")
	}
	errObj := decode(t, w)["error"].(map[string]any)
	details := errObj["details"].(map[string]any)
	if details["requestId"] != "req-abc" {
		t.Errorf("expected correlation id in details, got %#v", details)
	}
}

func TestStatusOf_AllKindsMapped(t *testing.T) {
	cases := map[errs.Kind]int{
		errs.KindValidation:         400,
		errs.KindAuthRequired:       401,
		errs.KindAuthInvalid:        401,
		errs.KindForbidden:          403,
		errs.KindForbiddenCrossShop: 403,
		errs.KindNotFound:           404,
		errs.KindConflictState:      409,
		errs.KindConflictSlot:       409,
		errs.KindConflictIdempotent: 409,
		errs.KindDuplicateUser:      409,
		errs.KindInsufficientPoints: 422,
		errs.KindRateLimited:        429,
		errs.KindGatewayUnavailable: 502,
		errs.KindInternal:           500,
	}
	for kind, want := range cases {
		if got := StatusOf(kind); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestBindJSON_Malformed(t *testing.T) {
	c, _ := testCtx(t)
	c.Request = httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("{not json"))

	var dst struct {
		Name string `json:"name"`
	}
	err := BindJSON(c, &dst)
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("expected validation kind, got %s", errs.KindOf(err))
	}
}
