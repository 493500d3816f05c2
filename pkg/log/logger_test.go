package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/HaoJinjin/open-soda/pkg/errors"
)

func TestTestLoggerCapturesLevelsAndFields(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", ErrorCodeKey, ErrorConvergence)
	testLogger.Error("error message", fmt.Errorf("boom"), ModelNameKey, "Lasso")

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty buffer")
	}
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("message %q not found", msg)
		}
	}
	if !testLogger.ContainsField("number", 42.0) {
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrAttrKey, "boom") {
		t.Error("Expected leading error to be captured under the error key")
	}
	if !testLogger.ContainsField(ModelNameKey, "Lasso") {
		t.Error("Expected model name after the leading error")
	}
}

func TestTestLoggerRespectsLevel(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelWarn)

	testLogger.Info("hidden")
	testLogger.Warn("shown")

	if testLogger.ContainsMessage("hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !testLogger.ContainsMessage("shown") {
		t.Error("warn message should be captured")
	}
	if testLogger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should not be enabled at warn level")
	}
}

func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(TargetColumnKey, "technical_fork", JobIDKey, "job-1")
	contextLogger.Info("pipeline started", PhaseKey, PhaseLoading)

	if !testLogger.ContainsField(TargetColumnKey, "technical_fork") {
		t.Error("context field not propagated")
	}
	if !testLogger.ContainsField(PhaseKey, PhaseLoading) {
		t.Error("call-site field missing")
	}
}

func TestTestLoggerConcurrent(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			testLogger.With(JobIDKey, id).Info("progress", ProgressKey, id*5)
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 20 {
		t.Errorf("got %d entries, want 20", len(entries))
	}
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(&buf, LevelInfo)

	logger := provider.GetLoggerWithName("prediction")
	logger.Debug("not written")
	logger.Info("model fitted", ModelNameKey, "Ridge", SamplesKey, 210)
	logger.Error("fit failed", fmt.Errorf("singular"), ModelNameKey, "SVR")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first[ComponentKey] != "prediction" || first[ModelNameKey] != "Ridge" {
		t.Errorf("unexpected fields: %v", first)
	}
	if first[SamplesKey] != 210.0 {
		t.Errorf("samples = %v, want 210", first[SamplesKey])
	}

	var second map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if second["error"] != "singular" {
		t.Errorf("error field = %v, want singular", second["error"])
	}

	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug must be disabled at info level")
	}
	provider.SetLevel(LevelDebug)
	if !provider.GetLogger().Enabled(context.Background(), LevelDebug) {
		t.Error("debug must be enabled after SetLevel")
	}
}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupLoggerWithWriter(&buf, "info"); err != nil {
		t.Fatalf("SetupLoggerWithWriter() error = %v", err)
	}
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewConvergenceWarning("Lasso", 1000, ""))

	out := buf.String()
	if !strings.Contains(out, `"algorithm":"Lasso"`) {
		t.Errorf("warning fields not embedded: %s", out)
	}
	if !strings.Contains(out, `"severity":"warn"`) {
		t.Errorf("expected Cloud Logging severity field: %s", out)
	}
}

func TestSetupLoggerSlogStacktrace(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupLoggerWithWriter(&buf, "debug"); err != nil {
		t.Fatalf("SetupLoggerWithWriter() error = %v", err)
	}
	defer errors.SetZerologWarnFunc(nil)

	slog.Error("request failed", ErrAttr(errors.New("disk full")))

	var entry map[string]interface{}
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", line, err)
	}
	if entry["severity"] != "ERROR" || entry["message"] != "request failed" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry[StacktraceAttrKey]; !ok {
		t.Errorf("stacktrace attribute missing: %v", entry)
	}
	if _, ok := entry[ErrorCodeKey]; ok {
		t.Errorf("plain errors must not carry an error code: %v", entry)
	}

	buf.Reset()
	slog.Warn("bad upload", ErrAttr(errors.Wrap(errors.NewInputError("LoadCSV", "CSV file is empty"), "prediction pipeline")))
	line = strings.TrimSpace(buf.String())
	entry = nil
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", line, err)
	}
	if entry[ErrorCodeKey] != ErrorInvalidInput {
		t.Errorf("%s = %v, want %s", ErrorCodeKey, entry[ErrorCodeKey], ErrorInvalidInput)
	}
	if entry[ErrorTypeKey] != "*errors.InputError" {
		t.Errorf("%s = %v, want *errors.InputError", ErrorTypeKey, entry[ErrorTypeKey])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGlobalProvider(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	GetLoggerWithName("jobs").Info("job created", JobIDKey, "abc")

	if !provider.logger.ContainsField(ComponentKey, "jobs") {
		t.Error("named logger should carry the component field")
	}
	if !provider.logger.ContainsField(JobIDKey, "abc") {
		t.Error("job id missing")
	}
}
