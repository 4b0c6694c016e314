package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDeliveryCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncChannelDelivered("IN_APP")
	metrics.IncChannelFailed("email", "email_not_found")
	metrics.ObserveChannelDeliveryDuration("email", 120*time.Millisecond)
	metrics.IncRetryScheduled()
	metrics.AddDrainerDelivered(4)

	if got := testutil.ToFloat64(metrics.channelDeliveredTotal.WithLabelValues("in_app")); got != 1 {
		t.Fatalf("channel_delivered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.channelFailedTotal.WithLabelValues("email", "EMAIL_NOT_FOUND")); got != 1 {
		t.Fatalf("channel_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retriesScheduledTotal); got != 1 {
		t.Fatalf("retries_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.drainerDeliveredTotal); got != 4 {
		t.Fatalf("drainer_delivered_total = %v, want 4", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncChannelDelivered("in_app")
	metrics.IncChannelFailed("email", "TIMEOUT")
	metrics.ObserveChannelDeliveryDuration("sms", time.Second)
	metrics.IncRetryScheduled()
	metrics.AddDrainerDelivered(1)

	if metrics.Handler() == nil {
		t.Fatal("nil metrics should still produce a handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
