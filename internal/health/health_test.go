package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthChecker(t *testing.T) {
	t.Run("依赖正常时就绪", func(t *testing.T) {
		hc := NewHealthChecker(pingerFunc(func(context.Context) error { return nil }), nil)

		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		hc.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("依赖故障时未就绪但仍存活", func(t *testing.T) {
		hc := NewHealthChecker(nil, nil)
		hc.AddReadinessDependency("redis", pingerFunc(func(context.Context) error {
			return errors.New("connection refused")
		}))

		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = httptest.NewRecorder()
		hc.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("检查带超时", func(t *testing.T) {
		check := PingCheck(pingerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}), 10*time.Millisecond)
		assert.ErrorIs(t, check(), context.DeadlineExceeded)
	})
}
