package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/srg/tp357/internal/tp357"
)

// readingWriter renders readings in the configured output format.
type readingWriter interface {
	Write(r tp357.Reading) error
	Flush() error
}

const liveTimeLayout = "2006-01-02 15:04:05"

// newHistoryWriter renders the readings of one history query.
func newHistoryWriter(w io.Writer, format string, mode tp357.Mode) readingWriter {
	if format == "json" {
		return &jsonWriter{enc: json.NewEncoder(w)}
	}
	return &tableWriter{w: w, layout: mode.TimeLayout()}
}

// newLiveWriter renders advertisement readings.
func newLiveWriter(w io.Writer, format string) readingWriter {
	if format == "json" {
		return &jsonWriter{enc: json.NewEncoder(w)}
	}
	return &liveWriter{w: w}
}

// jsonWriter prints one JSON document per line.
type jsonWriter struct {
	enc *json.Encoder
}

func (j *jsonWriter) Write(r tp357.Reading) error {
	return j.enc.Encode(r)
}

func (j *jsonWriter) Flush() error { return nil }

// tableWriter aligns history columns with a tabwriter.
type tableWriter struct {
	w      io.Writer
	tw     *tabwriter.Writer
	layout string
}

func (t *tableWriter) Write(r tp357.Reading) error {
	if t.tw == nil {
		t.tw = tabwriter.NewWriter(t.w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(t.tw, "TIME\tTEMP\tHUM")
	}
	_, err := fmt.Fprintf(t.tw, "%s\t%.1f°C\t%d%%\n",
		r.Timestamp.Format(t.layout), r.TemperatureCelsius, r.HumidityPercent)
	return err
}

func (t *tableWriter) Flush() error {
	if t.tw == nil {
		return nil
	}
	return t.tw.Flush()
}

// liveWriter prints advertisement readings as they arrive. Columns have a
// fixed width since rows cannot be buffered.
type liveWriter struct {
	w      io.Writer
	header bool
}

const liveRow = "%-19s  %-17s  %7s  %4s  %4s  %8s\n"

func (l *liveWriter) Write(r tp357.Reading) error {
	if !l.header {
		l.header = true
		if _, err := fmt.Fprintf(l.w, liveRow, "TIME", "ADDRESS", "TEMP", "HUM", "BATT", "RSSI"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(l.w, liveRow,
		r.Timestamp.Format(liveTimeLayout), r.Address,
		strconv.FormatFloat(r.TemperatureCelsius, 'f', 1, 64)+"°C",
		strconv.Itoa(r.HumidityPercent)+"%",
		optional(r.BatteryPercent, "%"), optional(r.RSSI, " dBm"))
	return err
}

func (l *liveWriter) Flush() error { return nil }

func optional(v *int, unit string) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v) + unit
}
