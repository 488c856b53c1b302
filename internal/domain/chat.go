package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role identifies who authored a Turn.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// HistoryItem is the role/content projection of a Turn submitted to the backend as
// conversational context.
type HistoryItem struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is one entry in the conversation. Follow-up fields and sources are only
// populated on teacher turns.
type Turn struct {
	ID                   string
	Role                 Role
	Content              string
	StudentFollowup      string
	TeacherClarification string
	Sources              []Source
}

// Source is a grounding citation attached to a teacher turn.
type Source struct {
	Page  int    `json:"page"`
	Label string `json:"-"`
	Text  string `json:"text"`
}

// UnmarshalJSON accepts the page either as a number or as a "<prefix>-<n>" label,
// which is how video transcript segments are numbered.
func (s *Source) UnmarshalJSON(data []byte) error {
	var raw struct {
		Page json.RawMessage `json:"page"`
		Text string          `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Text = raw.Text
	s.Page, s.Label = 0, ""
	if len(raw.Page) == 0 || string(raw.Page) == "null" {
		return nil
	}

	var n int
	if err := json.Unmarshal(raw.Page, &n); err == nil {
		s.Page = n
		s.Label = strconv.Itoa(n)
		return nil
	}
	var label string
	if err := json.Unmarshal(raw.Page, &label); err != nil {
		return fmt.Errorf("domain: source page must be a number or label: %s", raw.Page)
	}
	page, err := parsePageLabel(label)
	if err != nil {
		return err
	}
	s.Page = page
	s.Label = label
	return nil
}

func parsePageLabel(label string) (int, error) {
	label = strings.TrimSpace(label)
	digits := label
	if i := strings.LastIndex(label, "-"); i >= 0 {
		digits = label[i+1:]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("domain: unparseable source page label %q", label)
	}
	return n, nil
}

// DisplayPage is the page caption shown next to an excerpt.
func (s Source) DisplayPage() string {
	if s.Label != "" && s.Label != strconv.Itoa(s.Page) {
		return s.Label
	}
	return "Page " + strconv.Itoa(s.Page)
}

// AskStatus is the lifecycle state of the ask lane.
type AskStatus string

const (
	AskIdle      AskStatus = "idle"
	AskPending   AskStatus = "pending"
	AskFulfilled AskStatus = "fulfilled"
	AskFailed    AskStatus = "failed"
)

// AskRequest is what the orchestrator submits to the answer generator.
type AskRequest struct {
	Question   string
	History    []HistoryItem
	Difficulty string
}

// Answer is the validated answer payload. Absent optional fields are empty.
type Answer struct {
	Teacher         string
	Student         string
	TeacherFollowup string
	Sources         []Source
}
