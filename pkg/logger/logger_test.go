package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithFieldsAreEmitted(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Level: DebugLevel, Format: JSONFormat, Output: StdoutOutput, DisableTimestamp: true}
	log, err := NewWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	log.WithComponent("mapper").
		WithFields(Fields{"rows": 3}).
		WithError(errors.New("boom")).
		Info("mapped")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["component"] != "mapper" {
		t.Errorf("component = %v, want mapper", line["component"])
	}
	if line["rows"] != float64(3) {
		t.Errorf("rows = %v, want 3", line["rows"])
	}
	if line["error"] != "boom" {
		t.Errorf("error = %v, want boom", line["error"])
	}
	if line["msg"] != "mapped" {
		t.Errorf("msg = %v, want mapped", line["msg"])
	}
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithWriter(&Config{Level: InfoLevel, Format: TextFormat, Output: StdoutOutput}, &buf)

	tracker := NewProgressTracker(ProgressConfig{Operation: "import", Total: 4, Logger: log})
	tracker.Increment()
	tracker.Increment()
	tracker.Fail()

	stats := tracker.Complete(nil)
	if stats.Current != 3 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want current 3 failed 1", stats)
	}
	if !strings.Contains(buf.String(), "Operation completed") {
		t.Errorf("expected completion line, got %q", buf.String())
	}
	if !strings.Contains(stats.String(), "3/4") {
		t.Errorf("String() = %q", stats.String())
	}
}

func TestTimedOperation(t *testing.T) {
	want := errors.New("failed")
	if got := TimedOperation("op", Discard(), func() error { return want }); got != want {
		t.Errorf("TimedOperation() = %v, want %v", got, want)
	}
	if got := TimedOperation("op", Discard(), func() error { return nil }); got != nil {
		t.Errorf("TimedOperation() = %v, want nil", got)
	}
}
