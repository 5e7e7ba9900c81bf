package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/srg/tp357/internal/tp357"
)

var csvHeader = []string{"time", "hum_rh", "temp"}

// CSVFileName names the export of one history query, e.g.
// tp357-AABBCCDDEEFF-day-20240310123000.csv.
func CSVFileName(address string, mode tp357.Mode, now time.Time) string {
	return fmt.Sprintf("tp357-%s-%s-%s.csv",
		strings.ReplaceAll(address, ":", ""), mode, now.Format("20060102150405"))
}

// WriteCSV writes readings as time,hum_rh,temp rows under a header line,
// with times at the sample resolution of mode.
func WriteCSV(w io.Writer, mode tp357.Mode, readings []tp357.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range readings {
		row := []string{
			mode.Truncate(r.Timestamp).Format(TimeLayout),
			strconv.Itoa(r.HumidityPercent),
			strconv.FormatFloat(r.TemperatureCelsius, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
