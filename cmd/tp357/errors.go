package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/srg/tp357/internal/device"
	"github.com/srg/tp357/internal/tp357"
	"golang.org/x/term"
)

// FormatUserError turns an error into a message for the terminal. Known
// kinds get a hint; anything else is reported as is.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable it and try again"
	case errors.Is(err, tp357.ErrInvalidMode):
		return err.Error()
	case errors.Is(err, tp357.ErrEmptyResult):
		return "The returned data is empty: try running it again."
	case errors.Is(err, tp357.ErrTimeout):
		return fmt.Sprintf("timed out waiting for the device; move closer or raise --wait (%v)", err)
	case errors.Is(err, device.ErrLinkFailure), errors.Is(err, device.ErrNotConnected):
		return fmt.Sprintf("connection to the device kept failing after all retries: %v", err)
	default:
		return err.Error()
	}
}

// printUserError writes "ERROR: <message>", in red when w is a terminal.
func printUserError(w io.Writer, err error) {
	label := color.New(color.FgRed, color.Bold)
	if isTerminal(w) {
		label.EnableColor()
	} else {
		label.DisableColor()
	}
	fmt.Fprintf(w, "%s %s\n", label.Sprint("ERROR:"), FormatUserError(err))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
