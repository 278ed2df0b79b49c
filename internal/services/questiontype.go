package services

import "strings"

type QuestionType string

const (
	TypeString         QuestionType = "STRING"
	TypeBoolean        QuestionType = "BOOLEAN"
	TypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TypeDropdown       QuestionType = "DROPDOWN"
	TypeCheckbox       QuestionType = "CHECKBOX"
	TypeFileUpload     QuestionType = "FILE_UPLOAD"
)

// QuestionTypes lists every supported variant in display order.
var QuestionTypes = []QuestionType{
	TypeString, TypeBoolean, TypeMultipleChoice, TypeDropdown, TypeCheckbox, TypeFileUpload,
}

// IsChoice reports whether the type carries an options list.
func (t QuestionType) IsChoice() bool {
	switch t {
	case TypeMultipleChoice, TypeDropdown, TypeCheckbox:
		return true
	default:
		return false
	}
}

type Capability string

const (
	CapabilityText         Capability = "render-as-text"
	CapabilityChoiceSingle Capability = "render-as-choice-single"
	CapabilityChoiceMulti  Capability = "render-as-choice-multi"
	CapabilityBoolean      Capability = "render-as-boolean"
	CapabilityFile         Capability = "render-as-file"
)

// Kind is the closed set of question variants. Consumers branch on a Kind by
// implementing KindVisitor, so a new variant does not compile until every
// visitor handles it.
type Kind interface {
	Type() QuestionType
	Capability() Capability
	Accept(v KindVisitor)
}

type KindVisitor interface {
	VisitString(k StringKind)
	VisitBoolean(k BooleanKind)
	VisitMultipleChoice(k MultipleChoiceKind)
	VisitDropdown(k DropdownKind)
	VisitCheckbox(k CheckboxKind)
	VisitFileUpload(k FileUploadKind)
}

type StringKind struct {
	MinLength *int
	MaxLength *int
}

func (StringKind) Type() QuestionType { return TypeString }
func (StringKind) Capability() Capability { return CapabilityText }
func (k StringKind) Accept(v KindVisitor) { v.VisitString(k) }

type BooleanKind struct{}

func (BooleanKind) Type() QuestionType { return TypeBoolean }
func (BooleanKind) Capability() Capability { return CapabilityBoolean }
func (k BooleanKind) Accept(v KindVisitor) { v.VisitBoolean(k) }

type MultipleChoiceKind struct{ Options []string }

func (MultipleChoiceKind) Type() QuestionType { return TypeMultipleChoice }
func (MultipleChoiceKind) Capability() Capability { return CapabilityChoiceSingle }
func (k MultipleChoiceKind) Accept(v KindVisitor) { v.VisitMultipleChoice(k) }

type DropdownKind struct{ Options []string }

func (DropdownKind) Type() QuestionType { return TypeDropdown }
func (DropdownKind) Capability() Capability { return CapabilityChoiceSingle }
func (k DropdownKind) Accept(v KindVisitor) { v.VisitDropdown(k) }

type CheckboxKind struct{ Options []string }

func (CheckboxKind) Type() QuestionType { return TypeCheckbox }
func (CheckboxKind) Capability() Capability { return CapabilityChoiceMulti }
func (k CheckboxKind) Accept(v KindVisitor) { v.VisitCheckbox(k) }

type FileUploadKind struct{}

func (FileUploadKind) Type() QuestionType { return TypeFileUpload }
func (FileUploadKind) Capability() Capability { return CapabilityFile }
func (k FileUploadKind) Accept(v KindVisitor) { v.VisitFileUpload(k) }

// KindOf maps a stored question onto its variant. Fields that are meaningless
// for the variant are dropped.
func KindOf(q *Question) (Kind, error) {
	switch q.Type {
	case TypeString:
		return StringKind{MinLength: q.MinLength, MaxLength: q.MaxLength}, nil
	case TypeBoolean:
		return BooleanKind{}, nil
	case TypeMultipleChoice:
		return MultipleChoiceKind{Options: q.Options}, nil
	case TypeDropdown:
		return DropdownKind{Options: q.Options}, nil
	case TypeCheckbox:
		return CheckboxKind{Options: q.Options}, nil
	case TypeFileUpload:
		return FileUploadKind{}, nil
	default:
		return nil, configErrorf(q, "unsupported type %q", q.Type)
	}
}

// ValidateQuestionSchema checks the structural constraints a reviewer must
// satisfy when authoring a question.
func ValidateQuestionSchema(q *Question) error {
	if q == nil {
		return NewInvalidError("question required")
	}
	if strings.TrimSpace(q.DisplayName) == "" {
		return configErrorf(q, "display name required")
	}
	kind, err := KindOf(q)
	if err != nil {
		return err
	}
	if q.Type.IsChoice() {
		if len(q.Options) == 0 {
			return configErrorf(q, "options required for %s", q.Type)
		}
		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return configErrorf(q, "options must not be blank")
			}
			if seen[opt] {
				return configErrorf(q, "duplicate option %q", opt)
			}
			seen[opt] = true
		}
	} else if len(q.Options) > 0 {
		return configErrorf(q, "options are only allowed for choice questions")
	}
	if _, ok := kind.(StringKind); ok {
		if q.MinLength == nil || q.MaxLength == nil {
			return configErrorf(q, "min_length and max_length required for STRING")
		}
		if *q.MinLength < 0 || *q.MinLength > *q.MaxLength {
			return configErrorf(q, "min_length must be between 0 and max_length")
		}
	} else if q.MinLength != nil || q.MaxLength != nil {
		return configErrorf(q, "length bounds are only allowed for STRING")
	}
	return nil
}

// FieldView is what a rendering collaborator needs to draw one question.
type FieldView struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Type        QuestionType `json:"type"`
	Capability  Capability   `json:"capability"`
	Required    bool         `json:"required"`
	Placeholder string       `json:"placeholder,omitempty"`
	Options     []string     `json:"options,omitempty"`
	MinLength   int          `json:"min_length,omitempty"`
	MaxLength   int          `json:"max_length,omitempty"`
	Multiple    bool         `json:"multiple,omitempty"`
	Accept      string       `json:"accept,omitempty"`
}

type fieldViewBuilder struct{ view *FieldView }

func (b fieldViewBuilder) VisitString(k StringKind) {
	if k.MinLength != nil {
		b.view.MinLength = *k.MinLength
	}
	if k.MaxLength != nil {
		b.view.MaxLength = *k.MaxLength
	}
}

func (b fieldViewBuilder) VisitBoolean(BooleanKind) {}

func (b fieldViewBuilder) VisitMultipleChoice(k MultipleChoiceKind) {
	b.view.Options = append([]string(nil), k.Options...)
}

func (b fieldViewBuilder) VisitDropdown(k DropdownKind) {
	b.view.Options = append([]string(nil), k.Options...)
}

func (b fieldViewBuilder) VisitCheckbox(k CheckboxKind) {
	b.view.Options = append([]string(nil), k.Options...)
	b.view.Multiple = true
}

func (b fieldViewBuilder) VisitFileUpload(FileUploadKind) {
	b.view.Accept = "*/*"
}

// BuildFieldViews describes the questions of a cycle for rendering, in order.
func BuildFieldViews(questions []*Question) ([]FieldView, error) {
	out := make([]FieldView, 0, len(questions))
	for _, q := range questions {
		kind, err := KindOf(q)
		if err != nil {
			return nil, err
		}
		view := FieldView{
			ID:          q.ID,
			Label:       q.DisplayName,
			Description: q.Description,
			Type:        kind.Type(),
			Capability:  kind.Capability(),
			Required:    q.Required,
			Placeholder: q.Placeholder,
		}
		kind.Accept(fieldViewBuilder{view: &view})
		out = append(out, view)
	}
	return out, nil
}
