package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimit_PerAddress(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2)
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:5002"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:5000"))
}

func TestIPRateLimiter_ReusesLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, limiter.GetLimiter("192.0.2.1"), limiter.GetLimiter("192.0.2.1"))
	assert.NotSame(t, limiter.GetLimiter("192.0.2.1"), limiter.GetLimiter("192.0.2.2"))
}
