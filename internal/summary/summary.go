/*
Package summary computes mean, min, max and standard deviation of each column
of a recorded stream, and renders them as csv or as an xlsx workbook.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package summary

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/intel/powermeter/internal/derived"
	"github.com/intel/powermeter/internal/sink"
	"github.com/xuri/excelize/v2"
)

type Stats struct {
	Mean   float64
	Min    float64
	Max    float64
	Stddev float64
	Count  int
}

// Summary describes one stream file.
type Summary struct {
	Stream      string
	Intervals   int
	Degraded    int     // intervals whose status was not ok
	TotalEnergy float64 // last cumulative energy recorded
	Metrics     []string
	Stats       map[string]Stats
}

// getStats - calculate summary stats (min, max, mean, stddev) for the given values, ignoring NaN
func getStats(values []float64) (stats Stats) {
	stats = Stats{Mean: math.NaN(), Min: math.NaN(), Max: math.NaN(), Stddev: math.NaN()}
	sum := 0.0
	for _, val := range values {
		if math.IsNaN(val) {
			continue
		}
		if stats.Count == 0 {
			stats.Min = math.MaxFloat64
			stats.Max = -math.MaxFloat64
		}
		stats.Min = min(stats.Min, val)
		stats.Max = max(stats.Max, val)
		sum += val
		stats.Count++
	}
	// must be at least one valid value to calculate mean and standard deviation
	if stats.Count == 0 {
		return
	}
	stats.Mean = sum / float64(stats.Count)
	distanceSquaredSum := 0.0
	for _, val := range values {
		if math.IsNaN(val) {
			continue
		}
		distance := stats.Mean - val
		distanceSquaredSum += distance * distance
	}
	stats.Stddev = math.Sqrt(distanceSquaredSum / float64(stats.Count))
	return
}

// FromRecords summarizes records. When evaluator is not nil its metrics are
// evaluated per record and summarized too.
func FromRecords(stream string, records []sink.Record, evaluator *derived.Evaluator) (s Summary) {
	s = Summary{
		Stream:      stream,
		Intervals:   len(records),
		TotalEnergy: math.NaN(),
		Metrics:     []string{"power", "energy", "elapsed"},
		Stats:       make(map[string]Stats),
	}
	columns := make(map[string][]float64)
	for _, rec := range records {
		if rec.Status != sink.StatusOK {
			s.Degraded++
		}
		columns["power"] = append(columns["power"], rec.Power)
		columns["energy"] = append(columns["energy"], rec.Energy)
		columns["elapsed"] = append(columns["elapsed"], rec.Elapsed)
		if !math.IsNaN(rec.TotalEnergy) {
			s.TotalEnergy = rec.TotalEnergy
		}
		if evaluator != nil {
			for _, v := range evaluator.Evaluate(rec) {
				columns[v.Name] = append(columns[v.Name], v.Value)
			}
		}
	}
	if evaluator != nil {
		s.Metrics = append(s.Metrics, evaluator.Names()...)
	}
	for _, name := range s.Metrics {
		s.Stats[name] = getStats(columns[name])
	}
	return
}

// FromCSV summarizes a stream file written by the csv sink.
func FromCSV(path string, evaluator *derived.Evaluator) (s Summary, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	records, err := sink.ReadCSV(f)
	if err != nil {
		err = fmt.Errorf("failed to read %s: %v", path, err)
		return
	}
	s = FromRecords(path, records, evaluator)
	return
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%f", v)
}

// CSV renders summaries as "stream,metric,mean,min,max,stddev" rows.
func CSV(summaries []Summary) string {
	var sb strings.Builder
	sb.WriteString("stream,metric,mean,min,max,stddev\n")
	for _, s := range summaries {
		for _, name := range s.Metrics {
			st := s.Stats[name]
			sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s\n", s.Stream, name, formatFloat(st.Mean), formatFloat(st.Min), formatFloat(st.Max), formatFloat(st.Stddev)))
		}
		sb.WriteString(fmt.Sprintf("%s,total_energy,%s,,,\n", s.Stream, formatFloat(s.TotalEnergy)))
	}
	return sb.String()
}

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}

// WriteXLSX writes one sheet per summary.
func WriteXLSX(summaries []Summary, w io.Writer) (err error) {
	f := excelize.NewFile()
	defer f.Close()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return
	}
	headers := []string{"metric", "mean", "min", "max", "stddev"}
	for i, s := range summaries {
		sheet := sheetName(i, s.Stream)
		if i == 0 {
			err = f.SetSheetName("Sheet1", sheet)
		} else {
			_, err = f.NewSheet(sheet)
		}
		if err != nil {
			return
		}
		row := 1
		f.SetCellStr(sheet, cellName(1, row), "intervals")
		f.SetCellInt(sheet, cellName(2, row), s.Intervals)
		row++
		f.SetCellStr(sheet, cellName(1, row), "degraded")
		f.SetCellInt(sheet, cellName(2, row), s.Degraded)
		row++
		f.SetCellStr(sheet, cellName(1, row), "total energy (J)")
		setCellFloat(f, sheet, cellName(2, row), s.TotalEnergy)
		row += 2
		for col, header := range headers {
			f.SetCellStr(sheet, cellName(col+1, row), header)
			f.SetCellStyle(sheet, cellName(col+1, row), cellName(col+1, row), bold)
		}
		for _, name := range s.Metrics {
			row++
			st := s.Stats[name]
			f.SetCellStr(sheet, cellName(1, row), name)
			for col, v := range []float64{st.Mean, st.Min, st.Max, st.Stddev} {
				setCellFloat(f, sheet, cellName(col+2, row), v)
			}
		}
	}
	_, err = f.WriteTo(w)
	return
}

func setCellFloat(f *excelize.File, sheet, cell string, v float64) {
	if math.IsNaN(v) {
		f.SetCellStr(sheet, cell, "")
		return
	}
	f.SetCellFloat(sheet, cell, v, -1, 64)
}

// sheet names are limited to 31 characters and may not contain path separators
func sheetName(i int, stream string) string {
	name := stream
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		name = fmt.Sprintf("stream%d", i+1)
	}
	if len(name) > 28 {
		name = name[:28]
	}
	return fmt.Sprintf("%d %s", i+1, name)
}
