package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/crotosolve/internal/opt"
)

// TraceEntry represents a single entry in an optimizer's cost history.
// Each entry is serialized as a JSON line in trace-<optimizer>.jsonl.
type TraceEntry struct {
	// Evaluations is the cumulative number of cost evaluations
	Evaluations int `json:"evaluations"`

	// Cost is the cost recorded at that evaluation count
	Cost float64 `json:"cost"`

	// Timestamp records when this trace entry was written
	Timestamp time.Time `json:"timestamp"`
}

// TracePath returns the JSONL trace file path for one optimizer of a run.
func TracePath(baseDir, runID, optimizer string) string {
	return filepath.Join(runDir(baseDir, runID), "trace-"+optimizer+".jsonl")
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O for performance and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	err    error
}

// NewTraceWriter creates a new trace writer for one optimizer of a run.
// The trace file is created at <baseDir>/runs/<runID>/trace-<optimizer>.jsonl.
// If append is true, new entries are appended to existing file.
func NewTraceWriter(baseDir, runID, optimizer string, append bool) (*TraceWriter, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	if err := checkID(optimizer); err != nil {
		return nil, fmt.Errorf("invalid optimizer name: %w", err)
	}

	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := TracePath(baseDir, runID, optimizer)

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	writer := bufio.NewWriterSize(file, 64*1024) // 64KB buffer

	return &TraceWriter{
		file:   file,
		writer: writer,
		path:   path,
	}, nil
}

// Write appends a trace entry to the file.
// The entry is buffered and will be written on Flush() or Close().
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Observer adapts the writer to an opt.Observer. The first write error is
// kept and reported by Err.
func (tw *TraceWriter) Observer() opt.Observer {
	return func(p opt.TracePoint) {
		err := tw.Write(TraceEntry{Evaluations: p.Evaluations, Cost: p.Cost, Timestamp: time.Now()})
		if err != nil {
			tw.mu.Lock()
			if tw.err == nil {
				tw.err = err
			}
			tw.mu.Unlock()
		}
	}
}

// Err returns the first error an Observer callback hit.
func (tw *TraceWriter) Err() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.err
}

// Flush writes any buffered data to the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}

	// Also sync to disk for durability
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}

	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close() // Try to close anyway
		return fmt.Errorf("failed to flush on close: %w", err)
	}

	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// WriteTrace writes a complete trace in one go, replacing any existing file.
func WriteTrace(baseDir, runID, optimizer string, trace opt.Trace) error {
	tw, err := NewTraceWriter(baseDir, runID, optimizer, false)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, p := range trace {
		if err := tw.Write(TraceEntry{Evaluations: p.Evaluations, Cost: p.Cost, Timestamp: now}); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader creates a new trace reader for one optimizer of a run.
func NewTraceReader(baseDir, runID, optimizer string) (*TraceReader, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}

	file, err := os.Open(TracePath(baseDir, runID, optimizer))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 64KB initial, 1MB max

	return &TraceReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}

	return &entry, nil
}

// ReadAll reads all trace entries from the file.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry

	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Trace reads all remaining entries as an opt.Trace.
func (tr *TraceReader) Trace() (opt.Trace, error) {
	entries, err := tr.ReadAll()
	if err != nil {
		return nil, err
	}
	trace := make(opt.Trace, len(entries))
	for i, e := range entries {
		trace[i] = opt.TracePoint{Evaluations: e.Evaluations, Cost: e.Cost}
	}
	return trace, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes one optimizer's trace file.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, runID, optimizer string) error {
	err := os.Remove(TracePath(baseDir, runID, optimizer))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}

	return nil
}
