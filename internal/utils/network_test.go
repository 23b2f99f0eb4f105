package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGetRealIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		realIP    string
		forwarded string
		want      string
	}{
		{"public real ip", "203.0.113.7", "", "203.0.113.7"},
		{"private real ip falls through", "10.0.0.4", "198.51.100.2", "198.51.100.2"},
		{"first public forwarded hop", "", "10.1.1.1, 198.51.100.9, 203.0.113.1", "198.51.100.9"},
		{"all private uses first hop", "", "192.168.1.5, 10.0.0.1", "192.168.1.5"},
		{"no headers uses remote addr", "", "", "192.0.2.10"},
		{"garbage forwarded", "", "not-an-ip", "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/", nil)
			c.Request.RemoteAddr = "192.0.2.10:4711"
			if tt.realIP != "" {
				c.Request.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				c.Request.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, GetRealIP(c))
		})
	}
}

func TestIsLocalhost(t *testing.T) {
	assert.True(t, IsLocalhost("127.0.0.1"))
	assert.True(t, IsLocalhost("::1"))
	assert.False(t, IsLocalhost("192.0.2.1"))
}
