// Package export writes operation log records for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kilianp07/ocppfleet/core/oplog"
)

// Formats lists the supported output formats.
var Formats = []string{"json", "csv"}

// Write writes records to w in the named format.
func Write(w io.Writer, format string, records []oplog.Record) error {
	switch format {
	case "json":
		return WriteJSON(w, records)
	case "csv":
		return WriteCSV(w, records)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteJSON writes the records as one JSON array.
func WriteJSON(w io.Writer, records []oplog.Record) error {
	if records == nil {
		records = []oplog.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteCSV writes one row per charge point result.
func WriteCSV(w io.Writer, records []oplog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "task_id", "action", "charge_box_id", "outcome", "value", "code", "message"}); err != nil {
		return err
	}
	for _, r := range records {
		for _, res := range r.Results {
			rec := []string{
				r.Timestamp.UTC().Format(time.RFC3339),
				r.TaskID,
				r.Action,
				res.ChargeBoxID,
				res.Outcome,
				res.Value,
				res.Code,
				res.Message,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
