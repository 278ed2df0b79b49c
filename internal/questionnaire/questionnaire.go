// Package questionnaire reads cycle definitions from YAML and applies them
// through the services, so the usual schema checks hold for seeded data.
package questionnaire

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/intake/internal/services"
)

type Definition struct {
	Cycle     CycleDef      `yaml:"cycle"`
	Questions []QuestionDef `yaml:"questions"`
	Phases    []string      `yaml:"phases"`
}

type CycleDef struct {
	DisplayName string    `yaml:"display_name"`
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
}

type QuestionDef struct {
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	Required    bool     `yaml:"required"`
	Placeholder string   `yaml:"placeholder"`
	Options     []string `yaml:"options"`
	MinLength   *int     `yaml:"min_length"`
	MaxLength   *int     `yaml:"max_length"`
}

func (d QuestionDef) question(cycleID string) *services.Question {
	return &services.Question{
		CycleID:     cycleID,
		DisplayName: strings.TrimSpace(d.DisplayName),
		Description: d.Description,
		Type:        services.QuestionType(strings.ToUpper(strings.TrimSpace(d.Type))),
		Required:    d.Required,
		Placeholder: d.Placeholder,
		Options:     d.Options,
		MinLength:   d.MinLength,
		MaxLength:   d.MaxLength,
	}
}

// Validate checks the definition without touching storage.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Cycle.DisplayName) == "" {
		return fmt.Errorf("questionnaire: cycle.display_name is required")
	}
	if d.Cycle.Start.IsZero() || d.Cycle.End.IsZero() || !d.Cycle.Start.Before(d.Cycle.End) {
		return fmt.Errorf("questionnaire: cycle.start must be before cycle.end")
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q.DisplayName) == "" {
			return fmt.Errorf("questionnaire: questions[%d]: display_name is required", i)
		}
		if err := services.ValidateQuestionSchema(q.question("")); err != nil {
			return fmt.Errorf("questionnaire: questions[%d]: %w", i, err)
		}
	}
	for i, p := range d.Phases {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("questionnaire: phases[%d] is empty", i)
		}
	}
	return nil
}

func Parse(data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("questionnaire: definition is empty")
	}
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("questionnaire: decode: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("questionnaire: read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

type CycleCreator interface {
	Create(ctx context.Context, p services.Principal, displayName string, start, end time.Time) (*services.Cycle, error)
}

type QuestionCreator interface {
	Create(ctx context.Context, p services.Principal, q *services.Question, position *int) (*services.Question, error)
}

type PhaseCreator interface {
	Create(ctx context.Context, p services.Principal, ph *services.Phase, position *int) (*services.Phase, error)
}

// Result lists what Apply created.
type Result struct {
	Cycle     *services.Cycle
	Questions []*services.Question
	Phases    []*services.Phase
}

// Apply creates the cycle and then its questions and phases in file order.
// It stops at the first failure; records created before it are kept.
func Apply(ctx context.Context, def *Definition, p services.Principal, cycles CycleCreator, questions QuestionCreator, phases PhaseCreator) (*Result, error) {
	c, err := cycles.Create(ctx, p, def.Cycle.DisplayName, def.Cycle.Start, def.Cycle.End)
	if err != nil {
		return nil, fmt.Errorf("questionnaire: create cycle: %w", err)
	}
	res := &Result{Cycle: c}
	for i, qd := range def.Questions {
		q, err := questions.Create(ctx, p, qd.question(c.ID), nil)
		if err != nil {
			return res, fmt.Errorf("questionnaire: questions[%d]: %w", i, err)
		}
		res.Questions = append(res.Questions, q)
	}
	for i, name := range def.Phases {
		ph, err := phases.Create(ctx, p, &services.Phase{CycleID: c.ID, DisplayName: strings.TrimSpace(name)}, nil)
		if err != nil {
			return res, fmt.Errorf("questionnaire: phases[%d]: %w", i, err)
		}
		res.Phases = append(res.Phases, ph)
	}
	return res, nil
}
