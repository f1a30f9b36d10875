package model

import "time"

// RunSummary captures metrics from one orchestrated bill run.
type RunSummary struct {
	TableID            string
	JobID              string
	FinalStatus        Status
	StagesRun          int
	CodesChecked       int
	CodesMatched       int
	Unjustified        int
	LinesCovered       int
	DurationValidate   time.Duration
	DurationAdjudicate time.Duration
	DurationTotal      time.Duration
}

// LoadSummary captures metrics from a reference-code bulk load.
type LoadSummary struct {
	FilePath     string
	FileSHA256   string
	RowsRead     int64
	RowsLoaded   int64
	RowsRejected int64
	Duration     time.Duration
}
