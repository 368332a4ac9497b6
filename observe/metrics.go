// Package observe records pipeline metrics through the OpenTelemetry Metrics
// API. Tests and the CLI back it with an sdk/metric ManualReader and read the
// numbers back with Snapshot.
package observe

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "ad-video-pipeline"

// Metrics holds the instruments shared by all stages
type Metrics struct {
	// StageDuration tracks wall time per stage. Attribute: stage.
	StageDuration metric.Float64Histogram

	// GenerationCalls counts external generation calls. Attributes: kind
	// (text, image, edit, video), status (ok, failed, skipped).
	GenerationCalls metric.Int64Counter

	// Degradations counts placeholder or fallback substitutions. Attribute: stage.
	Degradations metric.Int64Counter
}

var stageBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

// NewMetrics creates the instruments on mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}
	if met.StageDuration, err = m.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Wall time of one pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationCalls, err = m.Int64Counter("pipeline.generation.calls",
		metric.WithDescription("External generation calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Degradations, err = m.Int64Counter("pipeline.degradations",
		metric.WithDescription("Recoverable failures substituted with a stand-in."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Nop returns metrics that record nothing
func Nop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordCall counts one generation call
func (m *Metrics) RecordCall(ctx context.Context, kind, status string) {
	m.GenerationCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordDegradation counts one substitution in stage
func (m *Metrics) RecordDegradation(ctx context.Context, stage string) {
	m.Degradations.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// TimeStage returns a func that records the elapsed time for stage when called
func (m *Metrics) TimeStage(ctx context.Context, stage string) func() {
	start := time.Now()
	return func() {
		m.StageDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("stage", stage)))
	}
}

// Point is one flattened data point of a snapshot
type Point struct {
	Metric     string            `json:"metric"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`           // counter value or histogram sum
	Count      uint64            `json:"count,omitempty"` // histogram sample count
}

// Snapshot collects reader's current data as a flat, sorted list
func Snapshot(ctx context.Context, reader *sdkmetric.ManualReader) ([]Point, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	var points []Point
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			switch data := mt.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Metric: mt.Name, Attributes: attrs(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Metric: mt.Name, Attributes: attrs(dp.Attributes), Value: dp.Sum, Count: dp.Count})
				}
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Metric != points[j].Metric {
			return points[i].Metric < points[j].Metric
		}
		return key(points[i].Attributes) < key(points[j].Attributes)
	})
	return points, nil
}

// WriteSnapshot writes Snapshot output as JSON to path
func WriteSnapshot(ctx context.Context, reader *sdkmetric.ManualReader, path string) error {
	points, err := Snapshot(ctx, reader)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func attrs(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	out := make(map[string]string, set.Len())
	for _, kv := range set.ToSlice() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func key(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var s string
	for _, k := range keys {
		s += k + "=" + m[k] + ";"
	}
	return s
}
