package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

type (
	// LogConfiguration is the logger configuration, loadable from a YAML file.
	// Zero value is usable, defaults are applied by New.
	LogConfiguration struct {
		Level      string `yaml:"defaultLevel"`
		Format     string `yaml:"format"`
		OutputPath string `yaml:"outputPath"`
		TimeFormat string `yaml:"timeFormat"`
		// ShowGoroutineID adds the calling goroutine id to log records.
		ShowGoroutineID *bool `yaml:"showGoroutineID"`

		// non-nil writer overrides OutputPath, used by tests
		OutPut io.Writer `yaml:"-"`
	}
)

// New returns logger for "cfg", used by the service binary.
func New(cfg *LogConfiguration) (*slog.Logger, error) {
	h, err := newHandler(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger handler: %w", err)
	}
	return slog.New(h), nil
}

func newHandler(cfg *LogConfiguration) (slog.Handler, error) {
	cfg.initDefaults()

	out := cfg.OutPut
	if out == nil {
		var err error
		if out, err = outputWriter(cfg.OutputPath); err != nil {
			return nil, fmt.Errorf("creating writer for log output: %w", err)
		}
	}

	hopt := &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.logLevel(),
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		hopt.ReplaceAttr = composeAttrFmt(formatTimeAttr(cfg.TimeFormat), formatDataAttrAsJSON)
		h = slog.NewTextHandler(out, hopt)
	case "json":
		h = slog.NewJSONHandler(out, hopt)
	case "ecs":
		hopt.ReplaceAttr = composeAttrFmt(formatTimeAttr(cfg.TimeFormat), formatAttrECS)
		h = ecsHandler{Handler: slog.NewJSONHandler(out, hopt)}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.ShowGoroutineID == nil || *cfg.ShowGoroutineID {
		h = goroutineIDHandler{Handler: h}
	}
	return h, nil
}

func outputWriter(name string) (io.Writer, error) {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "discard", "null":
		return io.Discard, nil
	}

	if err := os.MkdirAll(filepath.Dir(name), 0700); err != nil {
		return nil, fmt.Errorf("create dir %q for log output: %w", filepath.Dir(name), err)
	}
	file, err := os.OpenFile(filepath.Clean(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open file %q for log output: %w", name, err)
	}
	return file, nil
}

func (cfg *LogConfiguration) initDefaults() {
	if cfg.Level == "" {
		cfg.Level = slog.LevelInfo.String()
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "stderr"
	}
	if cfg.Format == "" {
		cfg.Format = "console"
	}
	if cfg.TimeFormat == "" {
		switch cfg.Format {
		case "console":
			cfg.TimeFormat = "15:04:05.0000"
		default:
			cfg.TimeFormat = "2006-01-02T15:04:05.0000Z0700"
		}
	}
}

func (cfg *LogConfiguration) logLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

/*
ecsHandler adds (static) fields required by the ECS but not
present in the log record by default.
*/
type ecsHandler struct {
	slog.Handler
}

func (h ecsHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("ecs.version", "1.4.0"))
	return h.Handler.Handle(ctx, r)
}

func (h ecsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ecsHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ecsHandler) WithGroup(name string) slog.Handler {
	return ecsHandler{Handler: h.Handler.WithGroup(name)}
}

// goroutineIDHandler adds the calling goroutine id to every record.
type goroutineIDHandler struct {
	slog.Handler
}

func (h goroutineIDHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.Uint64(GoIDKey, goroutineID()))
	return h.Handler.Handle(ctx, r)
}

func (h goroutineIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return goroutineIDHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h goroutineIDHandler) WithGroup(name string) slog.Handler {
	return goroutineIDHandler{Handler: h.Handler.WithGroup(name)}
}

var bufPool = sync.Pool{New: func() any { b := make([]byte, 64); return &b }}

func goroutineID() uint64 {
	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)
	b := *bp
	// goroutine stack header is "goroutine N [state]:"
	b = b[:runtime.Stack(b, false)]
	b = b[len("goroutine "):]
	i := 0
	for ; i < len(b) && b[i] != ' '; i++ {
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
