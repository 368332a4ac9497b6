package observe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// newTestMetrics returns Metrics backed by a ManualReader for inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func find(points []Point, metric string, attrs map[string]string) *Point {
	for i := range points {
		if points[i].Metric != metric {
			continue
		}
		match := true
		for k, v := range attrs {
			if points[i].Attributes[k] != v {
				match = false
				break
			}
		}
		if match {
			return &points[i]
		}
	}
	return nil
}

func TestRecordCallAndDegradation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCall(ctx, "image", "ok")
	m.RecordCall(ctx, "image", "failed")
	m.RecordCall(ctx, "image", "failed")
	m.RecordDegradation(ctx, "images")

	points, err := Snapshot(ctx, reader)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if p := find(points, "pipeline.generation.calls", map[string]string{"kind": "image", "status": "failed"}); p == nil || p.Value != 2 {
		t.Errorf("failed image calls = %+v, want 2", p)
	}
	if p := find(points, "pipeline.generation.calls", map[string]string{"kind": "image", "status": "ok"}); p == nil || p.Value != 1 {
		t.Errorf("ok image calls = %+v, want 1", p)
	}
	if p := find(points, "pipeline.degradations", map[string]string{"stage": "images"}); p == nil || p.Value != 1 {
		t.Errorf("degradations = %+v, want 1", p)
	}
}

func TestTimeStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	done := m.TimeStage(ctx, "audio")
	done()

	points, err := Snapshot(ctx, reader)
	if err != nil {
		t.Fatal(err)
	}
	p := find(points, "pipeline.stage.duration", map[string]string{"stage": "audio"})
	if p == nil {
		t.Fatal("stage duration not recorded")
	}
	if p.Count != 1 {
		t.Errorf("count = %d, want 1", p.Count)
	}
}

func TestWriteSnapshot(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordCall(ctx, "video", "skipped")

	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := WriteSnapshot(ctx, reader, path); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		t.Fatalf("snapshot is not JSON: %v", err)
	}
	if find(points, "pipeline.generation.calls", map[string]string{"kind": "video"}) == nil {
		t.Errorf("video call missing from %s", data)
	}
}

func TestNop(t *testing.T) {
	m := Nop()
	ctx := context.Background()
	m.RecordCall(ctx, "text", "ok")
	m.RecordDegradation(ctx, "audio")
	m.TimeStage(ctx, "merge")()
}
