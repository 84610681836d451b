package model

import (
	"encoding/json"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord describes one engine run from start to its last finalized epoch.
type RunRecord struct {
	VersionedRecord
	ID             string          `json:"id"`
	Problem        string          `json:"problem"`
	Objective      []string        `json:"objective"`
	Seed           int64           `json:"seed"`
	PopulationSize int             `json:"population_size"`
	Generations    int             `json:"generations"`
	Evaluations    int             `json:"evaluations"`
	BestScore      []float64       `json:"best_score,omitempty"`
	BestValue      string          `json:"best_value,omitempty"`
	Status         RunStatus       `json:"status"`
	Error          string          `json:"error,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at,omitempty"`
}

// EpochRecord is the persisted per-generation summary of a run.
type EpochRecord struct {
	Generation      int       `json:"generation"`
	BestScore       []float64 `json:"best_score"`
	Improved        bool      `json:"improved"`
	MeanFitness     float64   `json:"mean_fitness"`
	StdDevFitness   float64   `json:"stddev_fitness"`
	MinFitness      float64   `json:"min_fitness"`
	MaxFitness      float64   `json:"max_fitness"`
	Evaluations     int       `json:"evaluations"`
	SpeciesCount    int       `json:"species_count"`
	FrontSize       int       `json:"front_size"`
	ReplacedInvalid int       `json:"replaced_invalid"`
	ReplacedAged    int       `json:"replaced_aged"`
	Alterations     int       `json:"alterations"`
	ElapsedMS       int64     `json:"elapsed_ms"`
}

// FrontMember is one non-dominated solution kept at the end of a run.
type FrontMember struct {
	VersionedRecord
	PhenotypeID uint64    `json:"phenotype_id"`
	Generation  int       `json:"generation"`
	Scores      []float64 `json:"scores"`
	Alleles     []string  `json:"alleles"`
	Value       string    `json:"value"`
}
