package main

import (
	"encoding/csv"
	"os"

	"velocity-control-core/longitudinal"
)

// telemetryFlushEvery batches CSV rows between flushes; telemetry loss on
// crash is acceptable, control output is not affected either way.
const telemetryFlushEvery = 32

// Telemetry appends per-tick diagnostics to a CSV file.
type Telemetry struct {
	file *os.File
	w    *csv.Writer
	rows int
}

func NewTelemetry(path string) (*Telemetry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	t := &Telemetry{file: f, w: csv.NewWriter(f)}

	info, err := f.Stat()
	if err == nil && info.Size() == 0 {
		if err := t.w.Write(longitudinal.TelemetryHeader()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return t, nil
}

func (t *Telemetry) Write(diag longitudinal.Diagnostics) error {
	if err := t.w.Write(diag.TelemetryRecord()); err != nil {
		return err
	}
	t.rows++
	if t.rows%telemetryFlushEvery == 0 {
		t.w.Flush()
	}
	return t.w.Error()
}

func (t *Telemetry) Close() error {
	t.w.Flush()
	return t.file.Close()
}
