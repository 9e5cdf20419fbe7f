package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-mailroom/attachments"
	"github.com/goliatone/go-mailroom/core"
)

// ErrInvalidDocument marks content that is not a decodable PDF. Callers
// classify it separately from engine failures because retrying cannot fix it.
var ErrInvalidDocument = fmt.Errorf("ocr: content is not a valid pdf document: %w", core.ErrDocumentNotDecodable)

// Runner lets tests stub the external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger core.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		r.logger.Error("ocr exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		r.logger.Debug("ocr exec ok",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Config selects the extraction binary. Binary defaults to pdftotext, which
// emits form feeds between pages on stdout.
type Config struct {
	Binary string
}

// Engine runs the configured binary against PDF payloads and returns the
// extracted text. It implements core.Extractor.
type Engine struct {
	cfg    Config
	runner Runner
	logger core.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the exec-backed runner, used by tests.
func WithRunner(runner Runner) Option {
	return func(e *Engine) {
		if runner != nil {
			e.runner = runner
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(cfg Config, options ...Option) *Engine {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "pdftotext"
	}
	engine := &Engine{
		cfg:    cfg,
		logger: glog.Ensure(nil),
	}
	for _, option := range options {
		option(engine)
	}
	if engine.runner == nil {
		engine.runner = execRunner{logger: engine.logger}
	}
	return engine
}

// Extract writes content to a temp file, runs the binary with stdout output,
// and returns the text. Content without a PDF signature fails fast with
// ErrInvalidDocument before any process spawns.
func (e *Engine) Extract(ctx context.Context, content []byte) (string, error) {
	if !attachments.HasPDFMagic(content) {
		return "", ErrInvalidDocument
	}

	tmp, err := os.CreateTemp("", "mailroom-ocr-*.pdf")
	if err != nil {
		return "", fmt.Errorf("ocr: create temp file: %w", err)
	}
	path := tmp.Name()
	defer func() {
		if removeErr := os.Remove(path); removeErr != nil {
			e.logger.Warn("ocr temp file cleanup failed", "path", path, "error", removeErr)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("ocr: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("ocr: close temp file: %w", err)
	}

	stdout, stderr, err := e.runner.Run(ctx, e.cfg.Binary, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("ocr: %s failed: %w (stderr: %s)", e.cfg.Binary, err, truncate(string(stderr), 1<<10))
	}
	return string(stdout), nil
}
