/*
Package progress redraws one status line per label in place on a terminal.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinChars []string = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

type spinnerState struct {
	label       string
	status      string
	statusIsNew bool
	spinIndex   int
}

// MultiSpinner draws its spinners to out. When inPlace is false, only changed
// statuses are printed and the cursor is never moved.
type MultiSpinner struct {
	mu       sync.Mutex
	out      io.Writer
	inPlace  bool
	spinners []spinnerState
	ticker   *time.Ticker
	done     chan bool
	spinning bool
}

func NewMultiSpinner(out io.Writer, inPlace bool) *MultiSpinner {
	return &MultiSpinner{
		out:     out,
		inPlace: inPlace,
		done:    make(chan bool),
	}
}

func (ms *MultiSpinner) AddSpinner(label string) (err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	// make sure label is unique
	for _, spinner := range ms.spinners {
		if spinner.label == label {
			err = fmt.Errorf("spinner with label %s already exists", label)
			return
		}
	}
	ms.spinners = append(ms.spinners, spinnerState{label: label, status: "?"})
	return
}

func (ms *MultiSpinner) Start(interval time.Duration) {
	ms.ticker = time.NewTicker(interval)
	ms.spinning = true
	go ms.onTick()
}

func (ms *MultiSpinner) Finish() {
	if ms.spinning {
		ms.ticker.Stop()
		ms.done <- true
		ms.draw(false)
		ms.spinning = false
	}
}

func (ms *MultiSpinner) Status(label string, status string) (err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for spinnerIdx, spinner := range ms.spinners {
		if spinner.label == label {
			if status != spinner.status {
				ms.spinners[spinnerIdx].status = status
				ms.spinners[spinnerIdx].statusIsNew = true
			}
			return
		}
	}
	err = fmt.Errorf("did not find spinner with label %s", label)
	return
}

func (ms *MultiSpinner) onTick() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.ticker.C:
			ms.draw(true)
		}
	}
}

func (ms *MultiSpinner) draw(goUp bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for i, spinner := range ms.spinners {
		if !ms.inPlace && !spinner.statusIsNew {
			continue
		}
		fmt.Fprintf(ms.out, "%-6s  %s  %-60s\n", spinner.label, spinChars[spinner.spinIndex], spinner.status)
		ms.spinners[i].statusIsNew = false
		ms.spinners[i].spinIndex = (spinner.spinIndex + 1) % len(spinChars)
	}
	if goUp && ms.inPlace {
		for range ms.spinners {
			fmt.Fprintf(ms.out, "\x1b[1A")
		}
	}
}
