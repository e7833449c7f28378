/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
)

// CSV writes one row per record after a header row. Rows are flushed as they
// are written so the file can be followed while sampling.
type CSV struct {
	closer io.Closer
	writer *csv.Writer
	enc    *csvutil.Encoder
}

// CreateCSV creates (or truncates) fileName in dir, creating dir if needed,
// and writes the header.
func CreateCSV(dir, fileName string) (c *CSV, err error) {
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return
	}
	f, err := os.Create(filepath.Join(dir, fileName))
	if err != nil {
		return
	}
	c, err = NewCSV(f)
	if err != nil {
		f.Close()
		return
	}
	c.closer = f
	return
}

func NewCSV(w io.Writer) (c *CSV, err error) {
	writer := csv.NewWriter(w)
	c = &CSV{writer: writer, enc: csvutil.NewEncoder(writer)}
	err = c.enc.EncodeHeader(Record{})
	if err != nil {
		err = fmt.Errorf("failed to write csv header: %v", err)
		return
	}
	writer.Flush()
	err = writer.Error()
	return
}

func (c *CSV) Write(rec Record) (err error) {
	err = c.enc.Encode(rec)
	if err != nil {
		return
	}
	c.writer.Flush()
	err = c.writer.Error()
	return
}

func (c *CSV) Close() (err error) {
	c.writer.Flush()
	err = c.writer.Error()
	if c.closer != nil {
		if e := c.closer.Close(); err == nil {
			err = e
		}
	}
	return
}

// ReadCSV reads back the records of a file written by CSV.
func ReadCSV(r io.Reader) (records []Record, err error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		err = fmt.Errorf("failed to read csv header: %v", err)
		return
	}
	for {
		var rec Record
		err = dec.Decode(&rec)
		if err == io.EOF {
			err = nil
			return
		}
		if err != nil {
			return
		}
		records = append(records, rec)
	}
}
