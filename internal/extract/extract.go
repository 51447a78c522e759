package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iambrandonn/vtask/internal/model"
	"github.com/iambrandonn/vtask/internal/task"
)

const (
	DefaultModel           = "gemini-2.5-flash-lite"
	DefaultTimeout         = 12 * time.Second
	DefaultMaxOutputTokens = 2000
)

var (
	// ErrTimeout is returned when the model does not answer within the configured timeout
	ErrTimeout = errors.New("extraction timed out")

	// ErrEmptyReply is returned when the model answers with nothing but whitespace
	ErrEmptyReply = errors.New("model returned an empty reply")
)

// Result is the typed reading of one model reply
type Result struct {
	Intent       task.Intent
	Tasks        []task.Draft
	ModifyTarget *task.ModifyTarget
	ListFilter   *task.ListFilter
	Confirmed    bool
	Reasoning    string
}

// Config controls the model call
type Config struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Extractor turns a prompt into a Result by way of the model client
type Extractor struct {
	client model.Client
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor. Zero fields in cfg take the package defaults.
func New(client model.Client, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Extract sends prompt to the model and parses the reply. The call is bounded
// by the configured timeout regardless of ctx's own deadline.
func (e *Extractor) Extract(ctx context.Context, prompt string) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	started := time.Now()
	reply, err := e.client.Generate(callCtx, model.Request{
		Prompt:          prompt,
		Model:           e.cfg.Model,
		Temperature:     e.cfg.Temperature,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
	})
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, e.cfg.Timeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	e.logger.Debug("model replied", "model", e.cfg.Model, "elapsed", elapsed, "bytes", len(reply))

	if strings.TrimSpace(reply) == "" {
		return nil, ErrEmptyReply
	}
	return Parse(reply)
}

// Parse locates the JSON object in reply and maps it onto a Result
func Parse(reply string) (*Result, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var w wireResult
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, &ParseError{Reply: reply, Err: err}
	}
	return w.toResult(), nil
}

// wire shapes mirror the reply schema requested in the prompt
type wireResult struct {
	Intent       string      `json:"intent"`
	Tasks        []wireTask  `json:"tasks"`
	ModifyTarget *wireTarget `json:"modify_target"`
	ListFilter   *wireFilter `json:"list_filter"`
	Confirmed    bool        `json:"confirmed"`
	Reasoning    string      `json:"reasoning"`
}

type wireTask struct {
	Description        string `json:"description"`
	Date               string `json:"date"`
	Time               string `json:"time"`
	RecurrenceType     string `json:"recurrence_type"`
	RecurrenceDays     []int  `json:"recurrence_days"`
	RecurrenceEndDate  string `json:"recurrence_end_date"`
	OriginalExpression string `json:"original_expression"`
	AICallInstruction  string `json:"ai_call_instruction"`
}

type wireTarget struct {
	SearchBy            string `json:"search_by"`
	OriginalDate        string `json:"original_date"`
	OriginalTime        string `json:"original_time"`
	OriginalDescription string `json:"original_description"`
	NewDate             string `json:"new_date"`
	NewTime             string `json:"new_time"`
	NewDescription      string `json:"new_description"`
}

type wireFilter struct {
	Date       string `json:"date"`
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
}

func (w wireResult) toResult() *Result {
	r := &Result{
		Intent:    task.ParseIntent(w.Intent),
		Confirmed: w.Confirmed,
		Reasoning: strings.TrimSpace(w.Reasoning),
	}

	for _, t := range w.Tasks {
		r.Tasks = append(r.Tasks, t.toDraft())
	}
	if w.ModifyTarget != nil {
		r.ModifyTarget = w.ModifyTarget.toTarget()
	}
	if w.ListFilter != nil {
		f := task.ListFilter{
			Date:       strings.TrimSpace(w.ListFilter.Date),
			RangeStart: strings.TrimSpace(w.ListFilter.RangeStart),
			RangeEnd:   strings.TrimSpace(w.ListFilter.RangeEnd),
		}
		if f != (task.ListFilter{}) {
			r.ListFilter = &f
		}
	}
	return r
}

func (t wireTask) toDraft() task.Draft {
	d := task.Draft{
		Description:       strings.TrimSpace(t.Description),
		Date:              strings.TrimSpace(t.Date),
		Time:              task.NormalizeClock(t.Time),
		Recurrence:        task.ParseRecurrence(t.RecurrenceType),
		RecurrenceEndDate: strings.TrimSpace(t.RecurrenceEndDate),
		OriginalPhrase:    strings.TrimSpace(t.OriginalExpression),
		CallInstruction:   strings.TrimSpace(t.AICallInstruction),
	}
	if d.Recurrence == task.RecurrenceWeekly {
		for _, day := range t.RecurrenceDays {
			if day >= 0 && day <= 6 {
				d.RecurrenceDays = append(d.RecurrenceDays, day)
			}
		}
	}
	return d
}

func (t wireTarget) toTarget() *task.ModifyTarget {
	m := &task.ModifyTarget{
		SearchBy:            task.SearchBy(strings.ToLower(strings.TrimSpace(t.SearchBy))),
		OriginalDate:        strings.TrimSpace(t.OriginalDate),
		OriginalTime:        task.NormalizeClock(t.OriginalTime),
		OriginalDescription: strings.TrimSpace(t.OriginalDescription),
		NewDate:             strings.TrimSpace(t.NewDate),
		NewTime:             task.NormalizeClock(t.NewTime),
		NewDescription:      strings.TrimSpace(t.NewDescription),
	}

	switch m.SearchBy {
	case task.SearchByDate, task.SearchByTime, task.SearchByDescription:
		if m.Resolved() {
			return m
		}
	}

	// Model omitted or mislabelled search_by; pick the field it did fill in.
	switch {
	case m.OriginalDescription != "":
		m.SearchBy = task.SearchByDescription
	case m.OriginalDate != "":
		m.SearchBy = task.SearchByDate
	case m.OriginalTime != "":
		m.SearchBy = task.SearchByTime
	default:
		m.SearchBy = ""
	}
	return m
}
