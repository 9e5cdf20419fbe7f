package ocr

import (
	"context"
	"errors"
	"os"
	"testing"
)

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error

	name string
	args []string
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return r.stdout, r.stderr, r.err
}

func TestEngine_ExtractRunsBinaryAgainstTempFile(t *testing.T) {
	runner := &stubRunner{stdout: []byte("extracted text\fpage two")}
	engine := NewEngine(Config{}, WithRunner(runner))

	text, err := engine.Extract(context.Background(), []byte("%PDF-1.4 content"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "extracted text\fpage two" {
		t.Fatalf("unexpected text %q", text)
	}
	if runner.name != "pdftotext" {
		t.Fatalf("expected default binary, got %q", runner.name)
	}
	if len(runner.args) != 6 || runner.args[0] != "-layout" || runner.args[5] != "-" {
		t.Fatalf("unexpected args %v", runner.args)
	}
	if _, err := os.Stat(runner.args[4]); !os.IsNotExist(err) {
		t.Fatalf("expected temp file %q to be removed", runner.args[4])
	}
}

func TestEngine_ExtractRejectsNonPDF(t *testing.T) {
	engine := NewEngine(Config{}, WithRunner(&stubRunner{}))
	_, err := engine.Extract(context.Background(), []byte("PK\x03\x04 not a pdf"))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestEngine_ExtractWrapsEngineFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("exit status 1"), stderr: []byte("syntax error")}
	engine := NewEngine(Config{Binary: "pdftotext-custom"}, WithRunner(runner))

	_, err := engine.Extract(context.Background(), []byte("%PDF-1.4"))
	if err == nil {
		t.Fatalf("expected engine failure")
	}
	if runner.name != "pdftotext-custom" {
		t.Fatalf("expected configured binary, got %q", runner.name)
	}
}

func TestEngine_ExtractSurfacesContextDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &stubRunner{err: errors.New("signal: killed")}
	engine := NewEngine(Config{}, WithRunner(runner))

	_, err := engine.Extract(ctx, []byte("%PDF-1.4"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
