package logger

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/crossbill-org/crossbill/logger"
)

/*
New returns logger for test t on debug level.
*/
func New(t testing.TB) *slog.Logger {
	return NewLvl(t, slog.LevelDebug)
}

/*
NewLvl returns logger for test t on level "level".

Log is written into t.Log so it shows up only for failed tests (or when
-v flag is used).
*/
func NewLvl(t testing.TB, level slog.Level) *slog.Logger {
	cfg := &logger.LogConfiguration{
		Level:           level.String(),
		Format:          "text",
		TimeFormat:      "15:04:05.0000",
		ShowGoroutineID: ptr(true),
		OutPut:          &testWriter{t: t},
	}
	log, err := logger.New(cfg)
	if err != nil {
		t.Fatalf("creating test logger: %v", err)
	}
	return log
}

// NOP returns a logger which doesn't log (discards all writes).
func NOP() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

type testWriter struct {
	t  testing.TB
	mu sync.Mutex
}

func (tw *testWriter) Write(p []byte) (n int, err error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	// t.Log adds newline so trim the one (potentially) in the message
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	tw.t.Log(string(p))
	return len(p), nil
}
