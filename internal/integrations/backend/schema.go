package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"study-tutor/internal/domain"
)

const statusError = "error"

// chatResponse is the answer payload. Every field is optional.
type chatResponse struct {
	Teacher         *string         `json:"teacher"`
	Student         *string         `json:"student"`
	TeacherFollowup *string         `json:"teacher_followup"`
	Sources         []domain.Source `json:"sources"`
}

type ingestResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	PDF         *string `json:"pdf"`
	ChunksAdded *int    `json:"chunks_added"`
}

func decodeAnswer(raw []byte) (domain.Answer, error) {
	var out *chatResponse
	if err := decodeSingle(raw, &out); err != nil {
		return domain.Answer{}, &MalformedResponseError{Op: "chat", Err: err}
	}
	if out == nil {
		return domain.Answer{}, &MalformedResponseError{Op: "chat", Err: errors.New("null body")}
	}
	for i, s := range out.Sources {
		if s.Page < 0 {
			return domain.Answer{}, &MalformedResponseError{Op: "chat", Err: fmt.Errorf("source %d has negative page %d", i, s.Page)}
		}
	}
	sources := out.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	return domain.Answer{
		Teacher:         deref(out.Teacher),
		Student:         deref(out.Student),
		TeacherFollowup: deref(out.TeacherFollowup),
		Sources:         sources,
	}, nil
}

func decodePDFResult(raw []byte) (domain.IngestResult, error) {
	out, err := decodeIngest("pdf", raw)
	if err != nil {
		return domain.IngestResult{}, err
	}
	if out.PDF == nil {
		return domain.IngestResult{}, &MalformedResponseError{Op: "pdf", Err: errors.New("missing pdf filename")}
	}
	return domain.IngestResult{Document: *out.PDF, ChunksAdded: *out.ChunksAdded}, nil
}

func decodeYouTubeResult(raw []byte) (domain.IngestResult, error) {
	out, err := decodeIngest("youtube", raw)
	if err != nil {
		return domain.IngestResult{}, err
	}
	return domain.IngestResult{ChunksAdded: *out.ChunksAdded}, nil
}

func decodeIngest(op string, raw []byte) (*ingestResponse, error) {
	var out *ingestResponse
	if err := decodeSingle(raw, &out); err != nil {
		return nil, &MalformedResponseError{Op: op, Err: err}
	}
	if out == nil {
		return nil, &MalformedResponseError{Op: op, Err: errors.New("null body")}
	}
	if strings.EqualFold(out.Status, statusError) {
		msg := strings.TrimSpace(out.Message)
		if msg == "" {
			msg = "unspecified"
		}
		return nil, &BackendError{Message: msg}
	}
	if out.ChunksAdded == nil {
		return nil, &MalformedResponseError{Op: op, Err: errors.New("missing chunks_added")}
	}
	if *out.ChunksAdded < 0 {
		return nil, &MalformedResponseError{Op: op, Err: fmt.Errorf("negative chunks_added %d", *out.ChunksAdded)}
	}
	return out, nil
}

func decodeSingle(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(raw)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("multiple JSON values")
		}
		return fmt.Errorf("trailing data: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
