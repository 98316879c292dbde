package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)

	m.IncrementRegistered()
	m.IncrementRegistered()
	m.IncrementVerified()
	m.IncrementAdminTransfers()
	m.IncrementRejection("register", 100)
	m.IncrementRejection("register", 403)
	m.IncrementRejection("verify", 404)
	m.ObserveOperation("register", time.Now())

	assert.InDelta(t, 2, testutil.ToFloat64(m.RecipientsRegistered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RecipientsVerified), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AdminTransfers), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Rejections.WithLabelValues("register", "duplicate_id")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Rejections.WithLabelValues("verify", "not_found")), 0)

	count, err := testutil.GatherAndCount(reg, "aidreg_registry_operation_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
