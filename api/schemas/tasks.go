package schemas

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -- Task Schemas --

// TaskKind defines what a task asks the browser to do.
type TaskKind string

const (
	TaskSearch TaskKind = "SEARCH"
	TaskDetail TaskKind = "DETAIL"
)

// DefaultSearchLimit applies when a caller does not provide a positive limit.
const DefaultSearchLimit = 100

// MaxSearchLimit caps the number of rows a single search may extract.
const MaxSearchLimit = 500

// SearchQuery is an immutable search request against the trademark registry.
type SearchQuery struct {
	Text  string `json:"searchText"`
	Limit int    `json:"limit"`
}

// NewSearchQuery validates the input and applies the default limit.
func NewSearchQuery(text string, limit int) (SearchQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SearchQuery{}, fmt.Errorf("%w: Arama terimi gerekli", ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return SearchQuery{Text: text, Limit: limit}, nil
}

// DetailQuery identifies a single filed mark by its application number.
type DetailQuery struct {
	ApplicationNo string `json:"applicationNo"`
}

// NewDetailQuery validates the application number.
func NewDetailQuery(applicationNo string) (DetailQuery, error) {
	applicationNo = strings.TrimSpace(applicationNo)
	if applicationNo == "" {
		return DetailQuery{}, fmt.Errorf("%w: Başvuru numarası gerekli", ErrValidation)
	}
	return DetailQuery{ApplicationNo: applicationNo}, nil
}

// Task represents a unit of work to be executed by the engine.
// Exactly one of Search or Detail is set, matching Kind.
type Task struct {
	ID          string       `json:"task_id"`
	Kind        TaskKind     `json:"kind"`
	Search      *SearchQuery `json:"search,omitempty"`
	Detail      *DetailQuery `json:"detail,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// NewSearchTask wraps a search query in a task with a fresh ID.
func NewSearchTask(q SearchQuery) Task {
	return Task{ID: uuid.New().String(), Kind: TaskSearch, Search: &q, SubmittedAt: time.Now().UTC()}
}

// NewDetailTask wraps a detail query in a task with a fresh ID.
func NewDetailTask(q DetailQuery) Task {
	return Task{ID: uuid.New().String(), Kind: TaskDetail, Detail: &q, SubmittedAt: time.Now().UTC()}
}

// Validate checks that the payload matches the task kind.
func (t Task) Validate() error {
	switch t.Kind {
	case TaskSearch:
		if t.Search == nil {
			return fmt.Errorf("%w: search task without query", ErrValidation)
		}
	case TaskDetail:
		if t.Detail == nil {
			return fmt.Errorf("%w: detail task without query", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown task kind %q", ErrValidation, t.Kind)
	}
	return nil
}

// TaskResult is delivered back to the submitter once the task finishes.
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	Kind     TaskKind      `json:"kind"`
	Records  []BrandRecord `json:"records,omitempty"`
	Detail   *DetailResult `json:"detail,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}
