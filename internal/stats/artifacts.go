package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"phylon/internal/model"
)

const (
	runFile    = "run.json"
	epochsFile = "epochs.csv"
	frontFile  = "front.csv"
)

// RunArtifacts is everything exported for one run.
type RunArtifacts struct {
	Run    model.RunRecord
	Epochs []model.EpochRecord
	Front  []model.FrontMember
}

var epochHeader = []string{
	"generation", "best", "improved", "mean", "stddev", "min", "max",
	"evaluations", "species", "front_size", "replaced_invalid", "replaced_aged",
	"alterations", "elapsed_ms",
}

// WriteRunArtifacts writes run.json, epochs.csv and front.csv under
// outDir/<run id> and returns that directory.
func WriteRunArtifacts(outDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(outDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, epochsFile), func(w *csv.Writer) error {
		return writeEpochs(w, artifacts.Epochs)
	}); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, frontFile), func(w *csv.Writer) error {
		return writeFront(w, artifacts.Front)
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

func writeEpochs(w *csv.Writer, epochs []model.EpochRecord) error {
	if err := w.Write(epochHeader); err != nil {
		return err
	}
	for _, epoch := range epochs {
		if err := w.Write([]string{
			strconv.Itoa(epoch.Generation),
			joinFloats(epoch.BestScore),
			strconv.FormatBool(epoch.Improved),
			formatFloat(epoch.MeanFitness),
			formatFloat(epoch.StdDevFitness),
			formatFloat(epoch.MinFitness),
			formatFloat(epoch.MaxFitness),
			strconv.Itoa(epoch.Evaluations),
			strconv.Itoa(epoch.SpeciesCount),
			strconv.Itoa(epoch.FrontSize),
			strconv.Itoa(epoch.ReplacedInvalid),
			strconv.Itoa(epoch.ReplacedAged),
			strconv.Itoa(epoch.Alterations),
			strconv.FormatInt(epoch.ElapsedMS, 10),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFront(w *csv.Writer, front []model.FrontMember) error {
	channels := 0
	for _, member := range front {
		channels = max(channels, len(member.Scores))
	}
	header := []string{"phenotype_id", "generation"}
	for i := 0; i < channels; i++ {
		header = append(header, "score_"+strconv.Itoa(i))
	}
	header = append(header, "value")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, member := range front {
		row := []string{
			strconv.FormatUint(member.PhenotypeID, 10),
			strconv.Itoa(member.Generation),
		}
		for i := 0; i < channels; i++ {
			if i < len(member.Scores) {
				row = append(row, formatFloat(member.Scores[i]))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, member.Value)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// ReadBestSeries reads the first best-score channel of every generation from
// an exported epochs.csv.
func ReadBestSeries(runDir string) ([]float64, bool, error) {
	path := filepath.Join(runDir, epochsFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("epochs header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		first, _, _ := strings.Cut(record[1], ";")
		value, err := strconv.ParseFloat(first, 64)
		if err != nil {
			return nil, false, fmt.Errorf("generation %s: %w", record[0], err)
		}
		series = append(series, value)
	}
	return series, true, nil
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ";")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, fill func(*csv.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := fill(writer); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Sync()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
