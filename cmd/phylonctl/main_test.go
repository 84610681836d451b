package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phylon/internal/stats"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	orig := stdout
	stdout = buf
	t.Cleanup(func() {
		stdout = orig
	})
	return buf
}

func TestRunCommandMemoryExportsArtifacts(t *testing.T) {
	out := captureStdout(t)
	outDir := t.TempDir()
	args := []string{
		"run",
		"--store", "memory",
		"--problem", "onemax",
		"--dims", "16",
		"--pop", "10",
		"--gens", "3",
		"--seed", "11",
		"--workers", "2",
		"--out", outDir,
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run command: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "problem=onemax generations=3") {
		t.Fatalf("unexpected run output: %s", text)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read export dir: %v", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		t.Fatalf("expected one exported run directory, got %v", entries)
	}
	runDir := filepath.Join(outDir, entries[0].Name())
	for _, file := range []string{"run.json", "epochs.csv", "front.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}
	series, ok, err := stats.ReadBestSeries(runDir)
	if err != nil || !ok {
		t.Fatalf("read best series: ok=%v err=%v", ok, err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 generations in exported history, got %d", len(series))
	}
}

func TestRunCommandJSONWithProgressSuppressed(t *testing.T) {
	out := captureStdout(t)
	args := []string{
		"run",
		"--store", "memory",
		"--problem", "sphere",
		"--dims", "3",
		"--pop", "12",
		"--gens", "4",
		"--progress",
		"--json",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run command: %v", err)
	}

	var got struct {
		RunID       string    `json:"run_id"`
		Problem     string    `json:"problem"`
		Generations int       `json:"generations"`
		Evaluations int       `json:"evaluations"`
		BestScore   []float64 `json:"best_score"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode run json: %v\n%s", err, out.String())
	}
	if got.RunID == "" || got.Problem != "sphere" || got.Generations != 4 {
		t.Fatalf("unexpected run summary: %+v", got)
	}
	if len(got.BestScore) != 1 || got.BestScore[0] < 0 {
		t.Fatalf("expected one non-negative sphere score, got %v", got.BestScore)
	}
	if got.Evaluations < 12 {
		t.Fatalf("expected at least the initial population evaluated, got %d", got.Evaluations)
	}
}

func TestRunCommandProgressPrintsEveryGeneration(t *testing.T) {
	out := captureStdout(t)
	args := []string{"run", "--store", "memory", "--pop", "8", "--gens", "3", "--progress"}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run command: %v", err)
	}
	if got := strings.Count(out.String(), "generation="); got != 3 {
		t.Fatalf("expected 3 progress lines, got %d:\n%s", got, out.String())
	}
}

func TestRunCommandConfigFileAllowsFlagOverrides(t *testing.T) {
	out := captureStdout(t)
	configPath := filepath.Join(t.TempDir(), "run.yaml")
	data := []byte(`problem: rastrigin
dimensions: 2
population: 14
seed: 5
stop:
  generations: 9
`)
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	args := []string{"run", "--store", "memory", "--config", configPath, "--gens", "2", "--json"}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run command with config: %v", err)
	}
	var got struct {
		Problem     string `json:"problem"`
		Generations int    `json:"generations"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode run json: %v", err)
	}
	if got.Problem != "rastrigin" {
		t.Fatalf("expected problem from config file, got %s", got.Problem)
	}
	if got.Generations != 2 {
		t.Fatalf("expected --gens override to 2, got %d", got.Generations)
	}
}

func TestRunCommandServesMetrics(t *testing.T) {
	captureStdout(t)
	args := []string{"run", "--store", "memory", "--pop", "6", "--gens", "2", "--metrics-addr", "127.0.0.1:0"}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run command with metrics: %v", err)
	}
}

func TestBenchmarkCommandReportsEveryRun(t *testing.T) {
	out := captureStdout(t)
	args := []string{
		"benchmark",
		"--store", "memory",
		"--problem", "onemax",
		"--dims", "12",
		"--pop", "10",
		"--gens", "3",
		"--runs", "3",
		"--goal", "1000",
		"--json",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("benchmark command: %v", err)
	}

	var report stats.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if report.Problem != "onemax" || report.TotalRuns != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.SuccessRuns != 0 {
		t.Fatalf("an unreachable goal must not count as success, got %d", report.SuccessRuns)
	}
	if len(report.AverageBest) != 3 {
		t.Fatalf("expected 3 averaged generations, got %d", len(report.AverageBest))
	}
}

func TestProblemsCommandListsBuiltins(t *testing.T) {
	out := captureStdout(t)
	if err := run(context.Background(), []string{"problems"}); err != nil {
		t.Fatalf("problems command: %v", err)
	}
	for _, name := range []string{"onemax", "knapsack", "sphere", "tsp", "zdt1", "dtlz2"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("expected %s in problem list:\n%s", name, out.String())
		}
	}
}

func TestReadCommandsOnEmptyMemoryStore(t *testing.T) {
	out := captureStdout(t)
	if err := run(context.Background(), []string{"runs", "--store", "memory"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out.String(), "no runs found") {
		t.Fatalf("expected empty runs message, got %q", out.String())
	}
	if err := run(context.Background(), []string{"history", "--store", "memory", "--latest"}); err == nil {
		t.Fatal("expected history error without stored runs")
	}
	if err := run(context.Background(), []string{"export", "--store", "memory", "--latest", "--out", t.TempDir()}); err == nil {
		t.Fatal("expected export error without stored runs")
	}
}

func TestCommandValidation(t *testing.T) {
	captureStdout(t)
	cases := map[string][]string{
		"missing command":    nil,
		"unknown command":    {"evolve"},
		"bad log level":      {"run", "--store", "memory", "--log-level", "loud"},
		"bad problem":        {"run", "--store", "memory", "--problem", "nope", "--gens", "1"},
		"bad population":     {"run", "--store", "memory", "--pop", "0"},
		"bad store":          {"run", "--store", "redis"},
		"zero runs":          {"benchmark", "--store", "memory", "--runs", "0"},
		"history selector":   {"history", "--store", "memory"},
		"front both":         {"front", "--store", "memory", "--run-id", "x", "--latest"},
		"report problem":     {"report", "--store", "memory"},
		"runs limit":         {"runs", "--store", "memory", "--limit", "0"},
		"missing config":     {"run", "--store", "memory", "--config", filepath.Join(t.TempDir(), "absent.yaml")},
		"unknown run flag":   {"run", "--scape", "xor"},
		"unknown front flag": {"front", "--bogus"},
	}
	for name, args := range cases {
		if err := run(context.Background(), args); err == nil {
			t.Fatalf("%s: expected error for args %v", name, args)
		}
	}
}

func TestUsageErrorListsCommands(t *testing.T) {
	err := run(context.Background(), []string{"evolve"})
	if err == nil || !strings.Contains(err.Error(), "usage: phylonctl <run|benchmark|runs|history|front|export|report|problems>") {
		t.Fatalf("expected usage in error, got %v", err)
	}
}

func TestFormatScores(t *testing.T) {
	if got := formatScores(nil); got != "-" {
		t.Fatalf("expected placeholder for empty scores, got %q", got)
	}
	if got := formatScores([]float64{1, 0.5}); got != "1.000000;0.500000" {
		t.Fatalf("unexpected formatted scores: %q", got)
	}
}
