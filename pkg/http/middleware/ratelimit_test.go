package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func rateLimitedEcho(rps float64) *echo.Echo {
	e := echo.New()
	e.Use(RateLimit(rps))
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	return e
}

func hit(e *echo.Echo, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit_AllowsBurstThenThrottles(t *testing.T) {
	e := rateLimitedEcho(3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(e, "10.0.0.1"), "request %d inside the burst", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(e, "10.0.0.1"))
}

func TestRateLimit_BucketsArePerClient(t *testing.T) {
	e := rateLimitedEcho(1)

	assert.Equal(t, http.StatusOK, hit(e, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(e, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(e, "10.0.0.2"), "a throttled client must not starve others")
}
