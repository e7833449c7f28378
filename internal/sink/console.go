/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package sink

import (
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/intel/powermeter/internal/progress"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Console prints records for people. On a terminal each stream keeps one
// line that is redrawn in place, elsewhere every record is appended.
type Console struct {
	out     io.Writer
	printer *message.Printer
	spinner *progress.MultiSpinner
}

// NewConsole writes to f, redrawing in place when f is a terminal.
func NewConsole(f *os.File, streams []string) (c *Console, err error) {
	c = &Console{out: f, printer: message.NewPrinter(language.English)}
	if term.IsTerminal(int(f.Fd())) {
		c.spinner = progress.NewMultiSpinner(f, true)
		for _, stream := range streams {
			if err = c.spinner.AddSpinner(stream); err != nil {
				return
			}
		}
		c.spinner.Start(250 * time.Millisecond)
	}
	return
}

// NewConsoleWriter always appends lines to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, printer: message.NewPrinter(language.English)}
}

func (c *Console) format(rec Record) string {
	var sb strings.Builder
	if rec.Status == StatusOK || rec.Status == StatusDegraded {
		sb.WriteString(c.printer.Sprintf("%8.2f W  %10.3f J  total %.3f J", rec.Power, rec.Energy, rec.TotalEnergy))
	} else {
		sb.WriteString(c.printer.Sprintf("%8s W  %10s J  total %.3f J", "-", "-", rec.TotalEnergy))
	}
	for _, v := range rec.Derived {
		if math.IsNaN(v.Value) {
			sb.WriteString(c.printer.Sprintf("  %s -", v.Name))
			continue
		}
		sb.WriteString(c.printer.Sprintf("  %s %.3f", v.Name, v.Value))
	}
	if rec.Status != StatusOK {
		sb.WriteString("  [" + string(rec.Status) + "]")
	}
	return sb.String()
}

func (c *Console) Write(rec Record) (err error) {
	line := c.format(rec)
	if c.spinner != nil {
		err = c.spinner.Status(rec.Stream, line)
		return
	}
	_, err = c.printer.Fprintf(c.out, "%s %-4s %s\n", rec.Timestamp.Format(time.TimeOnly), rec.Stream, line)
	return
}

func (c *Console) Close() error {
	if c.spinner != nil {
		c.spinner.Finish()
	}
	return nil
}
