package domain

import "time"

// JobKind names an ingestion lane.
type JobKind string

const (
	JobPDF     JobKind = "pdf"
	JobYouTube JobKind = "youtube"
)

type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status is a resting outcome of a submission.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// IngestionJob is the transient state of one ingestion lane. Input is the display
// form of the lane input (file name or URL).
type IngestionJob struct {
	ID            string
	Kind          JobKind
	Input         string
	Status        JobStatus
	ResultMessage string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// PDFFile is a file selected for upload on the pdf lane.
type PDFFile struct {
	Name string
	Data []byte
}

// Empty reports whether no file is selected.
func (f PDFFile) Empty() bool {
	return f.Name == "" && len(f.Data) == 0
}

// IngestResult is the normalized outcome reported by an ingestion endpoint.
type IngestResult struct {
	Document    string
	ChunksAdded int
}
