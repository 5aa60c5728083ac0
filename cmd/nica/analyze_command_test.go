package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAnalyzeRecordsFinishedRun(t *testing.T) {
	env := setupCLITestEnv(t)
	path := writeRecording(t, "subject01")

	out, _, err := runCLI(t, []string{"analyze", path, "--export-signals"}, env.configPath)
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	requireContains(t, out, "==> Create Evaluation Path ...")
	requireContains(t, out, "==> Analysis Finished")
	requireContains(t, out, "_signal_oxy.csv")

	bundlePath := filepath.Join(env.cfg.Paths.AnalysisRoot, "Analysis", "measurements", "subject01", "Tapping", "subject01_Tapping_Tapping_for_GA.json")
	if _, err := os.Stat(bundlePath); err != nil {
		t.Fatalf("expected bundle at %s: %v", bundlePath, err)
	}

	var runID string
	for _, line := range strings.Split(out, "\n") {
		if id, ok := strings.CutPrefix(line, "Run ID: "); ok {
			runID = id
		}
	}
	if runID == "" {
		t.Fatalf("run id not printed:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, runID[:8])
	requireContains(t, out, "finished")

	out, _, err = runCLI(t, []string{"runs", "show", runID[:8]}, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	requireContains(t, out, filepath.Dir(bundlePath))
}

func TestAnalyzeFailureIsRecorded(t *testing.T) {
	env := setupCLITestEnv(t)
	path := writeRecording(t, "subject01")

	out, _, err := runCLI(t, []string{"analyze", path, "--trials", "5"}, env.configPath)
	if err == nil {
		t.Fatal("expected trial mismatch to fail")
	}
	requireContains(t, out, "Error while generating Biosignals and Conc. Change Signals")
	requireContains(t, out, "[ERROR]")

	out, _, err = runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "failed")
}

func TestAnalyzeRejectsInvalidOverrides(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"analyze", writeRecording(t, "subject01"), "--probe-set", "99"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown probe set") {
		t.Fatalf("expected probe set error, got %v", err)
	}
}

func TestGrandAverageAndTTestCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	var bundles []string
	for _, name := range []string{"subject01", "subject02"} {
		if out, _, err := runCLI(t, []string{"analyze", writeRecording(t, name)}, env.configPath); err != nil {
			t.Fatalf("analyze %s: %v\n%s", name, err, out)
		}
		bundles = append(bundles, filepath.Join(env.cfg.Paths.AnalysisRoot, "Analysis", "measurements", name, "Tapping", name+"_Tapping_Tapping_for_GA.json"))
	}

	out, _, err := runCLI(t, append([]string{"grand-average", "--roi", "1,2,3", "--roi", "4,5,6"}, bundles...), env.configPath)
	if err != nil {
		t.Fatalf("grand-average: %v\n%s", err, out)
	}
	requireContains(t, out, "Grand Average Analysis Finished")
	requireContains(t, out, "Grand_Average_oxyC_1.csv")

	out, _, err = runCLI(t, []string{"ttest", "--table", bundles[0]}, "")
	if err != nil {
		t.Fatalf("ttest: %v", err)
	}
	requireContains(t, out, "Reject Null hypothesis if p < 0.05")
	requireContains(t, out, "_T-Test_Output_File.txt")
}

func TestParseROIs(t *testing.T) {
	rois, err := parseROIs([]string{"1, 2,3", "4"})
	if err != nil {
		t.Fatalf("parseROIs: %v", err)
	}
	if len(rois) != 2 || len(rois[0]) != 3 || rois[1][0] != 4 {
		t.Fatalf("unexpected rois %v", rois)
	}
	if _, err := parseROIs([]string{"1,x"}); err == nil {
		t.Fatal("expected invalid channel error")
	}
}
