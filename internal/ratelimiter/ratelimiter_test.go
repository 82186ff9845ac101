package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabled(t *testing.T) {
	r := New(0, 10)
	assert.Nil(t, r)
	for i := 0; i < 100; i++ {
		assert.True(t, r.Allow())
	}
}

func TestBurstThenReject(t *testing.T) {
	r := New(0.001, 3)
	assert.True(t, r.Allow())
	assert.True(t, r.Allow())
	assert.True(t, r.Allow())
	assert.False(t, r.Allow(), "burst exhausted")
}

func TestZeroBurstAdmitsOne(t *testing.T) {
	r := New(0.001, 0)
	assert.True(t, r.Allow())
	assert.False(t, r.Allow())
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	t.Run("Limited", func(t *testing.T) {
		h := New(0.001, 1).Middleware(ok)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fmq", nil))
		assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fmq", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("Unlimited", func(t *testing.T) {
		var r *RateLimiter
		h := r.Middleware(ok)
		for i := 0; i < 5; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fmq", nil))
			assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)
		}
	})
}
