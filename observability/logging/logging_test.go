package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetupRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "crowdsaled", "test", Options{})
	logger.Info("sale started", slog.String("operation", "init"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "operation"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("expected key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["service"] != "crowdsaled" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "crowdsaled", "", Options{Level: ParseLevel("warn")})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line must be filtered at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("warn line missing")
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("jwt_secret", "hunter2"); got.Value.String() != RedactedValue {
		t.Fatalf("secret must be redacted, got %s", got.Value)
	}
	if got := MaskField("operation", "withdraw"); got.Value.String() != "withdraw" {
		t.Fatalf("allowlisted key must pass through, got %s", got.Value)
	}
	if got := MaskField("jwt_secret", " "); got.Value.String() != " " {
		t.Fatalf("empty values stay untouched")
	}
}
