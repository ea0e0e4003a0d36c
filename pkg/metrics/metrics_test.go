package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/metrics"
)

func TestLifecycle_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.BillingEvent("payment_succeeded", metrics.OutcomeApplied)
	m.BillingEvent("payment_succeeded", metrics.OutcomeApplied)
	m.BillingEvent("payment_succeeded", metrics.OutcomeDuplicate)
	m.SchedulerPass("grace_expiry", 10*time.Millisecond, nil)
	m.SchedulerPass("grace_expiry", 10*time.Millisecond, errors.New("db down"))
	m.Email("renewal_reminder", nil)
	m.ListingsHidden(3)
	m.ListingsRestored(0)

	count, err := testutil.GatherAndCount(reg, "sobernest_billing_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "sobernest_scheduler_pass_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "sobernest_listing_visibility_changes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "zero-count restore must not create a series")
}

func TestLifecycle_NilSafe(t *testing.T) {
	t.Parallel()

	var m *metrics.Lifecycle
	assert.NotPanics(t, func() {
		m.BillingEvent("x", metrics.OutcomeApplied)
		m.SchedulerPass("x", time.Second, nil)
		m.Email("x", nil)
		m.ListingsHidden(1)
		m.ListingsRestored(1)
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg, m := metrics.NewRegistry()
	m.Email("cancellation_notice", errors.New("bounced"))

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sobernest_lifecycle_emails_total{kind="cancellation_notice",result="failed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
