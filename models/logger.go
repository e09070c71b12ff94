package models

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// A workflow log is a stream of JSON lines: data lines carry step
// output, control lines mark step boundaries and their statuses.
type LogLine struct {
	Kind     string     `json:"kind"` // "data" or "control"
	Step     int        `json:"step"`
	Stream   string     `json:"stream,omitempty"` // stdout or stderr
	Line     string     `json:"line,omitempty"`
	StepName string     `json:"step_name,omitempty"`
	Status   StatusKind `json:"status,omitempty"`
}

func NewDataLogLine(idx int, line, stream string) LogLine {
	return LogLine{Kind: "data", Step: idx, Stream: stream, Line: line}
}

func NewControlLogLine(idx int, step Step, status StatusKind) LogLine {
	return LogLine{Kind: "control", Step: idx, StepName: step.Name(), Status: status}
}

type WorkflowLogger struct {
	file    *os.File
	encoder *json.Encoder
}

func NewWorkflowLogger(baseDir string, wid WorkflowId) (*WorkflowLogger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}

	path := LogFilePath(baseDir, wid)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	return &WorkflowLogger{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

func LogFilePath(baseDir string, workflowID WorkflowId) string {
	logFilePath := filepath.Join(baseDir, fmt.Sprintf("%s.log", workflowID.String()))
	return logFilePath
}

func (l *WorkflowLogger) Close() error {
	return l.file.Close()
}

// Control records a step boundary.
func (l *WorkflowLogger) Control(idx int, step Step, status StatusKind) error {
	return l.encoder.Encode(NewControlLogLine(idx, step, status))
}

// DataWriter returns a writer that records step output, one log line
// per written chunk.
func (l *WorkflowLogger) DataWriter(idx int, stream string) io.Writer {
	return &dataWriter{
		logger: l,
		idx:    idx,
		stream: stream,
	}
}

type dataWriter struct {
	logger *WorkflowLogger
	idx    int
	stream string
}

func (w *dataWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\r\n")
	entry := NewDataLogLine(w.idx, line, w.stream)
	if err := w.logger.encoder.Encode(entry); err != nil {
		return 0, err
	}
	return len(p), nil
}
