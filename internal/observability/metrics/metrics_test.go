package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("nation", "US"),
		attribute.String("itinerary_id", "456"),
		attribute.String("currency", "CAD"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("nation"), attrs[0].Key)
	assert.Equal(t, attribute.Key("currency"), attrs[1].Key)
}

func TestRecordTaxApplied(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := New(Config{ServiceName: "airtax-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTaxApplied(ctx, "us")
	m.RecordTaxApplied(ctx, "US ")
	m.RecordTaxApplied(ctx, "CA")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "airtax_taxes_applied_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				nation, _ := dp.Attributes.Value("nation")
				counts[nation.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"US": 2, "CA": 1}, counts)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordTaxApplied(ctx, "US")
	m.RecordConversionFailure(ctx, "ZZZ")
	m.RecordRateCacheWarmed(ctx, 3)
	m.RecordRateLimitAllowed(ctx, "evaluate")
	m.RecordRateLimitDenied(ctx, "evaluate", "exhausted")
}
