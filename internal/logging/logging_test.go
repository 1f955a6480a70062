package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsLevelToInfo(t *testing.T) {
	log, err := New("", "json")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Sync()
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("default level must enable info")
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("default level info must not enable debug")
	}
}

func TestNewAcceptsEachKnownLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := New(level, "json"); err != nil {
			t.Errorf("level %q: unexpected error %v", level, err)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("not-a-level", "json"); err == nil {
		t.Error("an unknown level string must be rejected")
	}
}

func TestNewAcceptsConsoleAndJSONFormats(t *testing.T) {
	if _, err := New("info", "console"); err != nil {
		t.Errorf("console format: unexpected error %v", err)
	}
	if _, err := New("info", "json"); err != nil {
		t.Errorf("json format: unexpected error %v", err)
	}
}

func TestOpAttachesOpIDField(t *testing.T) {
	base, err := New("debug", "json")
	if err != nil {
		t.Fatal(err)
	}
	child := Op(base, "op-42")
	if child == base {
		t.Error("Op must return a distinct child logger, not the same instance")
	}
}

func TestBatchAttachesBatchIndexField(t *testing.T) {
	base, err := New("debug", "json")
	if err != nil {
		t.Fatal(err)
	}
	child := Batch(base, 7)
	if child == base {
		t.Error("Batch must return a distinct child logger, not the same instance")
	}
}
