package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/config"
	"medical-dictation-server/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestHandleErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("voice %s not found", "v1"), http.StatusNotFound},
		{apperr.Forbidden("no"), http.StatusForbidden},
		{apperr.Conflict("twice"), http.StatusConflict},
		{apperr.Validation("bad"), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, w := testContext("/")
		HandleError(c, tc.err)
		if w.Code != tc.want {
			t.Fatalf("%v: status %d want %d", tc.err, w.Code, tc.want)
		}
		var body ResponseData
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Status != tc.want || body.Error == "" {
			t.Fatalf("body: %+v", body)
		}
	}
}

func TestHandleErrorHidesInternalDetails(t *testing.T) {
	c, w := testContext("/")
	HandleError(c, errors.New("password=hunter2"))
	var body ResponseData
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "Internal server error" {
		t.Fatalf("leaked error: %q", body.Error)
	}
}

func TestQueryFacetsAndPage(t *testing.T) {
	c, _ := testContext("/?skip=10&limit=3&validated=true&treated=0")
	f, err := QueryFacets(c)
	if err != nil {
		t.Fatalf("QueryFacets: %v", err)
	}
	if f.NoteCreated != nil || f.Validated == nil || !*f.Validated || f.Treated == nil || *f.Treated {
		t.Fatalf("facets: %+v", f)
	}
	p, err := QueryPage(c, 5)
	if err != nil || p.Skip != 10 || p.Limit != 3 {
		t.Fatalf("page: %+v %v", p, err)
	}

	c, _ = testContext("/")
	p, _ = QueryPage(c, 5)
	if p.Skip != 0 || p.Limit != 5 {
		t.Fatalf("default page: %+v", p)
	}
}

func TestQueryRejectsMalformedValues(t *testing.T) {
	for _, target := range []string{"/?validated=maybe", "/?treated=2x"} {
		c, _ := testContext(target)
		if _, err := QueryFacets(c); !apperr.Is(err, apperr.ErrValidation) {
			t.Fatalf("%s: got %v", target, err)
		}
	}
	for _, target := range []string{"/?limit=-1", "/?limit=0", "/?limit=1001", "/?skip=-3"} {
		c, _ := testContext(target)
		if _, err := QueryPage(c, 5); !apperr.Is(err, apperr.ErrValidation) {
			t.Fatalf("%s: page accepted: %v", target, err)
		}
	}
	c, _ := testContext("/?after=yesterday")
	if _, err := QueryTime(c, "after"); !apperr.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad date accepted: %v", err)
	}
}

func TestQueryTimeLayouts(t *testing.T) {
	c, _ := testContext("/?after=2024-02-01&before=2024-03-01T10:00:00Z")
	after, err := QueryTime(c, "after")
	if err != nil || !after.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("after: %v %v", after, err)
	}
	before, err := QueryTime(c, "before")
	if err != nil || before.Hour() != 10 {
		t.Fatalf("before: %v %v", before, err)
	}
}

func TestTokensRoundTrip(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:                 "access",
		JWTRefreshSecret:          "refresh",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 1,
	}
	user := &models.User{Role: models.RoleDoctor}
	user.ID = "u1"

	access, refresh, err := GenerateTokens(user, cfg)
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}
	claims, err := ValidateToken(access, cfg.JWTSecret)
	if err != nil || claims.UserID != "u1" || claims.Role != models.RoleDoctor {
		t.Fatalf("access claims: %+v %v", claims, err)
	}
	if _, err := ValidateToken(refresh, cfg.JWTSecret); err == nil {
		t.Fatalf("refresh token accepted with the access secret")
	}

	_, again, _ := GenerateTokens(user, cfg)
	if again == refresh {
		t.Fatalf("refresh tokens must differ between logins")
	}
}
