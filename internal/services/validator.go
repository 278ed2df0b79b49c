package services

import (
	"strings"
	"unicode/utf8"
)

// Mode selects where validation runs. The two modes accept different file
// upload values and are not interchangeable.
type Mode string

const (
	ModeClient        Mode = "client"
	ModeTrustedServer Mode = "trusted-server"
)

// MinStoredKeyLength is the shortest object key accepted in trusted-server mode.
const MinStoredKeyLength = 5

// UploadHandle is a file picked on the client that has not been uploaded yet.
type UploadHandle struct {
	Name        string
	Size        int64
	ContentType string
}

// Answer is the raw input for one question. A zero Answer is an absent answer.
type Answer struct {
	Value   string
	Upload  *UploadHandle
	present bool
}

func TextAnswer(v string) Answer { return Answer{Value: v, present: true} }

func UploadAnswer(h UploadHandle) Answer { return Answer{Upload: &h, present: true} }

func (a Answer) Present() bool { return a.present }

// Empty reports whether the answer is absent or the empty string.
func (a Answer) Empty() bool { return a.Upload == nil && (!a.present || a.Value == "") }

type Validator interface {
	Validate(a Answer) error
}

type ValidatorFunc func(a Answer) error

func (f ValidatorFunc) Validate(a Answer) error { return f(a) }

// BuildValidator compiles the rule for q. A malformed question yields a
// config error; applicant input failing the rule yields a validation error.
func BuildValidator(q *Question, mode Mode) (Validator, error) {
	if q == nil {
		return nil, NewInvalidError("question required")
	}
	if mode != ModeClient && mode != ModeTrustedServer {
		return nil, NewInvalidError("unknown validation mode " + string(mode))
	}
	kind, err := KindOf(q)
	if err != nil {
		return nil, err
	}
	b := &validatorBuilder{q: q, mode: mode}
	kind.Accept(b)
	if b.err != nil {
		return nil, b.err
	}
	rule := b.rule
	if !q.Required {
		rule = optional(rule)
	}
	return rule, nil
}

// ValidateAnswer builds the validator for q and runs it once.
func ValidateAnswer(q *Question, mode Mode, a Answer) error {
	v, err := BuildValidator(q, mode)
	if err != nil {
		return err
	}
	return v.Validate(a)
}

func optional(rule ValidatorFunc) ValidatorFunc {
	return func(a Answer) error {
		if a.Empty() {
			return nil
		}
		return rule(a)
	}
}

type validatorBuilder struct {
	q    *Question
	mode Mode
	rule ValidatorFunc
	err  error
}

func (b *validatorBuilder) text(check func(v string) error) ValidatorFunc {
	q := b.q
	return func(a Answer) error {
		if a.Upload != nil {
			return validationErrorf(q, "expected a text value")
		}
		if !a.present {
			return validationErrorf(q, "answer required")
		}
		return check(a.Value)
	}
}

func (b *validatorBuilder) VisitString(k StringKind) {
	q := b.q
	if k.MinLength == nil || k.MaxLength == nil {
		b.err = configErrorf(q, "min_length and max_length required for STRING")
		return
	}
	lo, hi := *k.MinLength, *k.MaxLength
	if lo < 0 || lo > hi {
		b.err = configErrorf(q, "min_length %d exceeds max_length %d", lo, hi)
		return
	}
	required := q.Required
	b.rule = b.text(func(v string) error {
		if required && strings.TrimSpace(v) == "" {
			return validationErrorf(q, "answer required")
		}
		n := utf8.RuneCountInString(v)
		if n < lo {
			return validationErrorf(q, "must be at least %d characters", lo)
		}
		if n > hi {
			return validationErrorf(q, "must be at most %d characters", hi)
		}
		return nil
	})
}

func (b *validatorBuilder) VisitBoolean(BooleanKind) {
	q := b.q
	b.rule = b.text(func(v string) error {
		if v != "true" && v != "false" {
			return validationErrorf(q, "must be true or false")
		}
		return nil
	})
}

func (b *validatorBuilder) single(options []string) {
	q := b.q
	if len(options) == 0 {
		b.err = configErrorf(q, "options required for %s", q.Type)
		return
	}
	allowed := optionSet(options)
	b.rule = b.text(func(v string) error {
		if q.Required && strings.TrimSpace(v) == "" {
			return validationErrorf(q, "answer required")
		}
		if !allowed[v] {
			return validationErrorf(q, "%q is not one of the options", v)
		}
		return nil
	})
}

func (b *validatorBuilder) VisitMultipleChoice(k MultipleChoiceKind) { b.single(k.Options) }

func (b *validatorBuilder) VisitDropdown(k DropdownKind) { b.single(k.Options) }

func (b *validatorBuilder) VisitCheckbox(k CheckboxKind) {
	q := b.q
	if len(k.Options) == 0 {
		b.err = configErrorf(q, "options required for %s", q.Type)
		return
	}
	allowed := optionSet(k.Options)
	b.rule = b.text(func(v string) error {
		if q.Required && strings.TrimSpace(v) == "" {
			return validationErrorf(q, "select at least one option")
		}
		selected, err := DecodeSelection(v)
		if err != nil {
			return validationErrorf(q, "malformed selection")
		}
		if q.Required && len(selected) == 0 {
			return validationErrorf(q, "select at least one option")
		}
		for _, s := range selected {
			if !allowed[s] {
				return validationErrorf(q, "%q is not one of the options", s)
			}
		}
		return nil
	})
}

func (b *validatorBuilder) VisitFileUpload(FileUploadKind) {
	q := b.q
	switch b.mode {
	case ModeClient:
		b.rule = func(a Answer) error {
			if a.Upload != nil {
				return nil
			}
			if a.present && a.Value != "" {
				return nil
			}
			return validationErrorf(q, "file required")
		}
	case ModeTrustedServer:
		b.rule = func(a Answer) error {
			if a.Upload != nil {
				return validationErrorf(q, "file must be uploaded before submitting")
			}
			if len(a.Value) < MinStoredKeyLength {
				return validationErrorf(q, "file required")
			}
			return nil
		}
	}
}

func optionSet(options []string) map[string]bool {
	m := make(map[string]bool, len(options))
	for _, o := range options {
		m[o] = true
	}
	return m
}
