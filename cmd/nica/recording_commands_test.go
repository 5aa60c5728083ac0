package main

import (
	"path/filepath"
	"testing"
)

func TestRecordingConvertAndInspect(t *testing.T) {
	src := writeRecording(t, "subject01")
	target := filepath.Join(t.TempDir(), "subject01.edf")

	out, _, err := runCLI(t, []string{"recording", "convert", src, target}, "")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	requireContains(t, out, "Wrote "+target)

	out, _, err = runCLI(t, []string{"recording", "inspect", target}, "")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "Channels")
	requireContains(t, out, "1, 8, 9")
}

func TestRecordingConvertRejectsUnknownFormat(t *testing.T) {
	src := writeRecording(t, "subject01")
	if _, _, err := runCLI(t, []string{"recording", "convert", src, filepath.Join(t.TempDir(), "out.csv")}, ""); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
