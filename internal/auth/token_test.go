package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign("u1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	uid, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("uid = %q", uid)
	}
}

func TestVerifier_WrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Sign("u1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewVerifier("secret-b").Verify(token); err == nil {
		t.Fatal("token signed with a different secret verified")
	}
}

func TestVerifier_Expired(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign("u1", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewVerifier("test-secret")

	r := gin.New()
	r.GET("/whoami", v.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, string(UserID(c)))
	})

	token, err := v.Sign("u42", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK, "u42"},
		{"query token", "", "?token=" + token, http.StatusOK, "u42"},
		{"missing token", "", "", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer nope", "", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body = %q, want %q", w.Body.String(), tc.body)
			}
		})
	}
}
