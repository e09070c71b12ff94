package docker

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestAnsiStrippingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &ansiStrippingWriter{&buf}

	input := []byte("\x1b[31mred\x1b[0m text\n")
	n, err := w.Write(input)
	if err != nil {
		t.Fatal(err)
	}
	// the full input counts as written even though the escape codes
	// are dropped; io.Copy and stdcopy treat anything less as a
	// short write
	if n != len(input) {
		t.Errorf("got n=%d, want %d", n, len(input))
	}
	if buf.String() != "red text\n" {
		t.Errorf("got %q, want %q", buf.String(), "red text\n")
	}
}

func TestAnsiStrippingWriterPlain(t *testing.T) {
	var buf bytes.Buffer
	w := &ansiStrippingWriter{&buf}

	n, err := w.Write([]byte("plain output"))
	if err != nil {
		t.Fatal(err)
	}
	if n != len("plain output") {
		t.Errorf("got n=%d, want %d", n, len("plain output"))
	}
	if buf.String() != "plain output" {
		t.Errorf("got %q", buf.String())
	}
}

func TestAnsiStrippingWriterCopy(t *testing.T) {
	var buf bytes.Buffer
	w := &ansiStrippingWriter{&buf}

	src := strings.NewReader("\x1b[1;32m==>\x1b[0m building\x07\n")
	if _, err := io.Copy(w, src); err != nil {
		t.Fatalf("copy through the stripping writer failed: %v", err)
	}
	if buf.String() != "==> building\n" {
		t.Errorf("got %q", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestAnsiStrippingWriterPropagatesErrors(t *testing.T) {
	w := &ansiStrippingWriter{failingWriter{}}

	if _, err := w.Write([]byte("anything")); err == nil {
		t.Error("expected underlying write error to propagate")
	}
}
