package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Cors())
	r.PUT("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Less(t, w.Code, 300)
	allowed := w.Header().Get("Access-Control-Allow-Methods")
	assert.Contains(t, allowed, "GET")
	assert.Contains(t, allowed, "PUT")
	assert.NotContains(t, allowed, "POST")
	assert.NotContains(t, allowed, "PATCH")
}
