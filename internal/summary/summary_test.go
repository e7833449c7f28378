/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package summary

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/intel/powermeter/internal/derived"
	"github.com/intel/powermeter/internal/sink"
	"github.com/xuri/excelize/v2"
)

func TestGetStats(t *testing.T) {
	got := getStats([]float64{2, 4, math.NaN(), 4, 4, 5, 5, 7, 9})
	want := Stats{Mean: 5, Min: 2, Max: 9, Stddev: 2, Count: 8}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStatsNegative(t *testing.T) {
	got := getStats([]float64{-3, -1})
	if got.Max != -1 || got.Min != -3 {
		t.Fatalf("got %+v", got)
	}
}

func TestGetStatsAllNaN(t *testing.T) {
	got := getStats([]float64{math.NaN(), math.NaN()})
	if got.Count != 0 || !math.IsNaN(got.Mean) || !math.IsNaN(got.Stddev) {
		t.Fatalf("got %+v", got)
	}
}

func testRecords() []sink.Record {
	return []sink.Record{
		{Power: 10, Energy: 1, TotalEnergy: 1, Elapsed: 0.1, Status: sink.StatusOK},
		{Power: 30, Energy: 3, TotalEnergy: 4, Elapsed: 0.1, Status: sink.StatusDegraded},
		{Power: math.NaN(), Energy: math.NaN(), TotalEnergy: 4, Elapsed: 0, Status: sink.StatusInvalidInterval},
	}
}

func TestFromRecords(t *testing.T) {
	e, err := derived.Compile([]derived.Definition{{Name: "double", Expression: "power * 2"}})
	if err != nil {
		t.Fatal(err)
	}
	s := FromRecords("cpu", testRecords(), e)
	if s.Intervals != 3 || s.Degraded != 2 || s.TotalEnergy != 4 {
		t.Fatalf("got %+v", s)
	}
	if diff := cmp.Diff([]string{"power", "energy", "elapsed", "double"}, s.Metrics); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}
	if p := s.Stats["power"]; p.Mean != 20 || p.Count != 2 {
		t.Fatalf("power stats %+v", p)
	}
	if d := s.Stats["double"]; d.Max != 60 || d.Min != 20 {
		t.Fatalf("derived stats %+v", d)
	}
}

func TestFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	c, err := sink.NewCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range testRecords() {
		if err := c.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	s, err := FromCSV(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Intervals != 3 || s.Stats["energy"].Max != 3 {
		t.Fatalf("got %+v", s)
	}
	out := CSV([]Summary{s})
	if !strings.HasPrefix(out, "stream,metric,mean,min,max,stddev\n") {
		t.Fatalf("unexpected header in %q", out)
	}
	if !strings.Contains(out, path+",power,20.000000,10.000000,30.000000,10.000000\n") {
		t.Fatalf("missing power row in %q", out)
	}
}

func TestFromCSVMissing(t *testing.T) {
	if _, err := FromCSV(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Fatal("should have failed")
	}
}

func TestWriteXLSX(t *testing.T) {
	summaries := []Summary{FromRecords("out/cpu", testRecords(), nil), FromRecords("out/gpu", testRecords(), nil)}
	var buf bytes.Buffer
	if err := WriteXLSX(summaries, &buf); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if diff := cmp.Diff([]string{"1 cpu", "2 gpu"}, f.GetSheetList()); diff != "" {
		t.Fatalf("sheets mismatch (-want +got):\n%s", diff)
	}
	v, err := f.GetCellValue("1 cpu", "B1")
	if err != nil || v != "3" {
		t.Fatalf("intervals cell %q, %v", v, err)
	}
	v, err = f.GetCellValue("2 gpu", "A6")
	if err != nil || v != "power" {
		t.Fatalf("metric cell %q, %v", v, err)
	}
}
