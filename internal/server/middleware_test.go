package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBearerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users := map[string]string{"tok-a": "alice", "tok-b": "bob"}

	r := gin.New()
	r.Use(BearerAuth(users))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, userFrom(c))
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer tok-a", wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "other user", header: "Bearer tok-b", wantStatus: http.StatusOK, wantBody: "bob"},
		{name: "unknown token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "bare token", header: "tok-a", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}
