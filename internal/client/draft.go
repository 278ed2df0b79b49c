package client

import (
	"context"
	"log"

	"github.com/soaringjerry/intake/internal/mutation"
	"github.com/soaringjerry/intake/internal/services"
)

const KeyResponses = "responses"

// Draft is an applicant's view of their own application. Answers are saved
// through the coordinator like every reviewer edit.
type Draft struct {
	client        *Client
	applicationID string
	registry      *mutation.Registry
	coord         *mutation.Coordinator
	Answers       *mutation.Collection[*services.Response]
}

func NewDraft(c *Client, applicationID string, logger *log.Logger) *Draft {
	d := &Draft{client: c, applicationID: applicationID, registry: mutation.NewRegistry()}
	d.Answers = mutation.NewCollection(func(ctx context.Context) ([]*services.Response, error) {
		return c.ListResponses(ctx, applicationID)
	})
	mutation.Register(d.registry, KeyResponses, d.Answers)
	d.coord = mutation.NewCoordinator(d.registry, logger)
	return d
}

func (d *Draft) ApplicationID() string { return d.applicationID }

func (d *Draft) Load(ctx context.Context) error {
	return d.registry.Invalidate(ctx, KeyResponses)
}

// Answer returns the visible value for questionID.
func (d *Draft) Answer(questionID string) (string, bool) {
	for _, r := range d.Answers.Items() {
		if r.QuestionID == questionID {
			return r.Value, true
		}
	}
	return "", false
}

// SetAnswer shows value at once and saves it. A rejected value is rolled back
// to the previous answer.
func (d *Draft) SetAnswer(ctx context.Context, questionID, value string) error {
	return d.coord.Execute(ctx, KeyResponses, &mutation.Command[*services.Response]{
		Target: d.Answers,
		Update: func(items []*services.Response) ([]*services.Response, error) {
			out := make([]*services.Response, 0, len(items)+1)
			found := false
			for _, r := range items {
				if r.QuestionID == questionID {
					cp := *r
					cp.Value = value
					out = append(out, &cp)
					found = true
					continue
				}
				out = append(out, r)
			}
			if !found {
				out = append(out, &services.Response{QuestionID: questionID, ApplicationID: d.applicationID, Value: value})
			}
			return out, nil
		},
		Send: func(ctx context.Context) error {
			return d.client.UpsertResponse(ctx, d.applicationID, questionID, value)
		},
	})
}

// Submit is not speculative: the server's draft check makes it at-most-once.
func (d *Draft) Submit(ctx context.Context) (*services.Application, error) {
	return d.client.Submit(ctx, d.applicationID)
}
