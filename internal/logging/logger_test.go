package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoryLoggersNameEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	UseLogger(zap.New(core))
	defer UseLogger(zap.NewNop())

	Eval("score %.2f", 0.5)
	OracleWarn("planner exited %d", 2)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].LoggerName != "eval" || entries[0].Message != "score 0.50" {
		t.Errorf("unexpected first entry: %s %q", entries[0].LoggerName, entries[0].Message)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].LoggerName != "oracle" {
		t.Errorf("unexpected second entry: %v %s", entries[1].Level, entries[1].LoggerName)
	}
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	install(zap.New(core), Config{Categories: map[string]bool{"stepper": false}})
	defer UseLogger(zap.NewNop())

	Stepper("grounded %d operators", 12)
	Walk("sampled")

	if logs.Len() != 1 {
		t.Fatalf("got %d entries, want 1", logs.Len())
	}
	if logs.All()[0].LoggerName != "walk" {
		t.Errorf("wrong category logged: %s", logs.All()[0].LoggerName)
	}
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	if err := Initialize(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestTimer(t *testing.T) {
	timer := StartTimer(CategoryOracle, "search")
	time.Sleep(time.Millisecond)
	if elapsed := timer.Stop(); elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}
}
