package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/Atharv714/Safe-Passage/internal/model"
	"github.com/Atharv714/Safe-Passage/internal/value"
)

// WriteEventsCSV writes pothole events to CSV with a fixed column order.
// Structured payloads are written as compact JSON, absent ones as empty cells.
func WriteEventsCSV(w io.Writer, items []model.Event) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"seq",
		"id",
		"received",
		"client_ts",
		"user_agent",
		"ip",
		"location",
		"gyro",
		"accel",
		"orientation",
		"metrics",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, ev := range items {
		record := []string{
			strconv.FormatUint(ev.Seq, 10),
			ev.ID,
			formatTime(ev.ReceivedAt),
			cell(ev.ClientTS),
			ev.UserAgent,
			ev.SourceAddr,
			cell(ev.Location),
			cell(ev.Gyro),
			cell(ev.Accel),
			cell(ev.Orientation),
			cell(ev.Metrics),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func cell(v value.Value) string {
	if v.IsNull() {
		return ""
	}
	return v.String()
}
