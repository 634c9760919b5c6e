package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByIPAndJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keyFn := KeyByIPAndJSONField("email")

	cases := []struct {
		body string
		want string
	}{
		{body: `{"email":" Driver@Example.com "}`, want: "driver@example.com|10.1.2.3"},
		{body: `{"email":42}`, want: "10.1.2.3"},
		{body: `not json`, want: "10.1.2.3"},
		{body: ``, want: "10.1.2.3"},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tc.body))
		c.Request.RemoteAddr = "10.1.2.3:40000"

		if got := keyFn(c); got != tc.want {
			t.Fatalf("body %q key want %s got %s", tc.body, tc.want, got)
		}
		// 取完 key 后请求体必须还能被处理器读取
		rest, err := io.ReadAll(c.Request.Body)
		if err != nil || string(rest) != tc.body {
			t.Fatalf("body should be restored, got %q err=%v", rest, err)
		}
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{Name: "sync", WindowSeconds: 60, MaxRequests: 1}, KeyByUserID))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestRateLimitRuleAndDecision(t *testing.T) {
	rule := RateLimitRule{Prefix: "fs:rate:sync", WindowSeconds: 60, MaxRequests: 2}
	if !rule.active() || (RateLimitRule{WindowSeconds: 60}).active() {
		t.Fatalf("unexpected active state")
	}
	if got := rule.key("user:3"); got != "fs:rate:sync:user:3" {
		t.Fatalf("key want fs:rate:sync:user:3 got %s", got)
	}
	if got := (RateLimitRule{}).key("1.2.3.4"); got != "1.2.3.4" {
		t.Fatalf("key without prefix want bare subject got %s", got)
	}

	cases := []struct {
		name     string
		decision rateDecision
		want     bool
	}{
		{name: "under limit", decision: rateDecision{count: 1}, want: false},
		{name: "at limit", decision: rateDecision{count: 2}, want: false},
		{name: "over limit", decision: rateDecision{count: 3}, want: true},
		{name: "blocked", decision: rateDecision{count: -1}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.decision.exceeded(rule.MaxRequests); got != tc.want {
				t.Fatalf("exceeded want %v got %v", tc.want, got)
			}
		})
	}
}

func TestKeyByIPAndJSONFieldFallsBackToIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, body := range []string{``, `not json`, `{"email": 42}`, `{"password":"x"}`} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(body))
		c.Request.RemoteAddr = "9.9.9.9:1000"
		if key := KeyByIPAndJSONField("email")(c); key != "9.9.9.9" {
			t.Fatalf("body %q: key want client ip got %s", body, key)
		}
	}
}

func TestKeyByUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/sync/pending", nil)
	c.Request.RemoteAddr = "5.6.7.8:1234"

	if key := KeyByUserID(c); key != "5.6.7.8" {
		t.Fatalf("anonymous key want client ip got %s", key)
	}
	c.Set(userIDContextKey, uint(21))
	if key := KeyByUserID(c); key != "user:21" {
		t.Fatalf("key want user:21 got %s", key)
	}
}
