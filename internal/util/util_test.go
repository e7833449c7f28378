/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	exists, err := FileExists(path)
	if err != nil || exists {
		t.Fatalf("missing file: %v, %v", exists, err)
	}
	if err := os.WriteFile(path, []byte("interval_ms: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	exists, err = FileExists(path)
	if err != nil || !exists {
		t.Fatalf("existing file: %v, %v", exists, err)
	}
	if _, err := FileExists(dir); err == nil {
		t.Fatal("directory should not count as a file")
	}
}

func TestAbsPath(t *testing.T) {
	abs, err := AbsPath("power_meter_out")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(abs) {
		t.Fatalf("%s is not absolute", abs)
	}
}
