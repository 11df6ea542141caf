// Package ocr wraps the external optical character recognition engine.
// Extraction is best effort: the engine may return empty text for an image
// it cannot read, which is not an error.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Engine converts an image buffer to plain text.
type Engine interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

const defaultTimeout = 60 * time.Second

// inputPlaceholder in the command line is replaced with the image path.
const inputPlaceholder = "{input}"

// CommandEngine shells out to an OCR tool (tesseract, paddleocr wrapper, ...).
// The image is written to a temp file, the command's stdout is the extracted
// text. The temp file lives only for the duration of the call.
type CommandEngine struct {
	command []string
	timeout time.Duration
}

// NewCommandEngine parses a whitespace-separated command line. The command
// must contain the {input} placeholder, e.g. "tesseract {input} stdout -l eng".
func NewCommandEngine(commandLine string, timeout time.Duration) (*CommandEngine, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("ocr command required")
	}
	hasInput := false
	for _, f := range fields {
		if f == inputPlaceholder {
			hasInput = true
			break
		}
	}
	if !hasInput {
		return nil, fmt.Errorf("ocr command must contain %s placeholder", inputPlaceholder)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CommandEngine{command: fields, timeout: timeout}, nil
}

// Extract runs the configured command against the image bytes.
func (e *CommandEngine) Extract(ctx context.Context, image []byte) (string, error) {
	tmp, err := os.CreateTemp("", "clinsum-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write ocr temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close ocr temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := make([]string, 0, len(e.command)-1)
	for _, f := range e.command[1:] {
		if f == inputPlaceholder {
			f = tmp.Name()
		}
		args = append(args, f)
	}
	cmd := exec.CommandContext(ctx, e.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ocr command timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("ocr command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
