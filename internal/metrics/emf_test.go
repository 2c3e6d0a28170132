package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func testRecorder(buf *bytes.Buffer) *Recorder {
	r := NewRecorder("annotation")
	r.out = buf
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	delete(r.dimensions, "FunctionName")
	return r
}

func TestFlushDocument(t *testing.T) {
	var buf bytes.Buffer
	r := testRecorder(&buf)
	r.Count("BatchCompleted", 3).
		Count("BatchFailed", 1).
		Duration("BatchLatency", 1234*time.Millisecond).
		Property("batchId", "b-1")
	r.Flush()

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("EMF document must be a single line, got %q", line)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}

	if doc["Pipeline"] != "annotation" {
		t.Errorf("Pipeline = %v", doc["Pipeline"])
	}
	if doc["BatchCompleted"] != float64(3) {
		t.Errorf("BatchCompleted = %v", doc["BatchCompleted"])
	}
	if doc["BatchLatency"] != float64(1234) {
		t.Errorf("BatchLatency = %v", doc["BatchLatency"])
	}
	if doc["batchId"] != "b-1" {
		t.Errorf("batchId property = %v", doc["batchId"])
	}

	aws, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("_aws directive missing")
	}
	if aws["Timestamp"] != float64(1700000000000) {
		t.Errorf("Timestamp = %v", aws["Timestamp"])
	}
	cw := aws["CloudWatchMetrics"].([]interface{})[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("Namespace = %v", cw["Namespace"])
	}
	metrics := cw["Metrics"].([]interface{})
	if len(metrics) != 3 {
		t.Errorf("metric defs = %d, want 3", len(metrics))
	}
}

func TestFlushWithoutMetricsEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	r := testRecorder(&buf)
	r.Property("batchId", "b-2") // properties alone do not warrant a document
	r.Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestDimensionKeysListed(t *testing.T) {
	var buf bytes.Buffer
	r := testRecorder(&buf)
	r.Dimension("Kind", "thumbnail").Count("Jobs", 1)
	r.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	aws := doc["_aws"].(map[string]interface{})
	cw := aws["CloudWatchMetrics"].([]interface{})[0].(map[string]interface{})
	dims := cw["Dimensions"].([]interface{})[0].([]interface{})

	found := map[string]bool{}
	for _, d := range dims {
		found[d.(string)] = true
	}
	if !found["Pipeline"] || !found["Kind"] {
		t.Errorf("dimension keys = %v, want Pipeline and Kind", dims)
	}
	if doc["Kind"] != "thumbnail" {
		t.Errorf("Kind value = %v", doc["Kind"])
	}
}
