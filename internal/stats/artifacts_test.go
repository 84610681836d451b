package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"phylon/internal/model"
)

func TestWriteRunArtifactsAndReadBestSeries(t *testing.T) {
	outDir := t.TempDir()

	artifacts := RunArtifacts{
		Run: model.RunRecord{ID: "run-123", Problem: "zdt1", Objective: []string{"minimize", "minimize"}},
		Epochs: []model.EpochRecord{
			{Generation: 1, BestScore: []float64{0.7, 0.3}, Evaluations: 10},
			{Generation: 2, BestScore: []float64{0.5, 0.4}, Improved: true, Evaluations: 18},
			{Generation: 3, BestScore: []float64{0.25, 0.6}, Improved: true, Evaluations: 26},
		},
		Front: []model.FrontMember{
			{PhenotypeID: 7, Generation: 3, Scores: []float64{0.25, 0.6}, Value: "[0.1 0.2]"},
			{PhenotypeID: 9, Generation: 2, Scores: []float64{0.6, 0.2}, Value: "[0.3 0.4]"},
		},
	}

	runDir, err := WriteRunArtifacts(outDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if runDir != filepath.Join(outDir, "run-123") {
		t.Fatalf("unexpected run dir: %s", runDir)
	}
	for _, file := range []string{"run.json", "epochs.csv", "front.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	series, ok, err := ReadBestSeries(runDir)
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if !ok {
		t.Fatal("expected series to exist")
	}
	want := []float64{0.7, 0.5, 0.25}
	if len(series) != len(want) {
		t.Fatalf("unexpected series length: %v", series)
	}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("series[%d]=%f want %f", i, series[i], want[i])
		}
	}

	file, err := os.Open(filepath.Join(runDir, "front.csv"))
	if err != nil {
		t.Fatalf("open front: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read front: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][2] != "score_0" || rows[0][3] != "score_1" || rows[1][0] != "7" {
		t.Fatalf("unexpected front csv: %v", rows)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestReadBestSeriesMissingFile(t *testing.T) {
	series, ok, err := ReadBestSeries(t.TempDir())
	if err != nil || ok || series != nil {
		t.Fatalf("expected missing series, got %v ok=%v err=%v", series, ok, err)
	}
}
