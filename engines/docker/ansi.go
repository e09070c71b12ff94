package docker

import (
	"io"
	"regexp"
)

// regex to match ANSI escape codes (e.g., color codes, cursor moves)
const ansi = "[\u001B\u009B][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\u0007)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))"

var ansiRe = regexp.MustCompile(ansi)

type ansiStrippingWriter struct {
	underlying io.Writer
}

// Write consumes all of p even though the stripped form is shorter;
// reporting the stripped count would look like a short write upstream.
func (w *ansiStrippingWriter) Write(p []byte) (int, error) {
	clean := ansiRe.ReplaceAll(p, []byte{})
	if _, err := w.underlying.Write(clean); err != nil {
		return 0, err
	}
	return len(p), nil
}
