// Package client is a typed HTTP client for the portal API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soaringjerry/intake/internal/services"
)

// APIError is a non-2xx response. Code carries the service error kind.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%d): %s [%s]", e.Code, e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: build %s: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		apiErr := &APIError{Status: res.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = "http"
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	var res services.AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &res); err != nil {
		return nil, err
	}
	c.token = res.Token
	return &res, nil
}

func (c *Client) ActiveCycle(ctx context.Context) (*services.Cycle, error) {
	var cy services.Cycle
	if err := c.do(ctx, http.MethodGet, "/api/cycles/active", nil, &cy); err != nil {
		return nil, err
	}
	return &cy, nil
}

func (c *Client) ListQuestions(ctx context.Context, cycleID string) ([]*services.Question, error) {
	var res struct {
		Questions []*services.Question `json:"questions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/cycles/"+url.PathEscape(cycleID)+"/questions", nil, &res)
	return res.Questions, err
}

func (c *Client) ListPhases(ctx context.Context, cycleID string) ([]*services.Phase, error) {
	var res struct {
		Phases []*services.Phase `json:"phases"`
	}
	err := c.do(ctx, http.MethodGet, "/api/cycles/"+url.PathEscape(cycleID)+"/phases", nil, &res)
	return res.Phases, err
}

func (c *Client) ListApplications(ctx context.Context, cycleID string) ([]*services.Application, error) {
	var res struct {
		Applications []*services.Application `json:"applications"`
	}
	err := c.do(ctx, http.MethodGet, "/api/applications?cycle_id="+url.QueryEscape(cycleID), nil, &res)
	return res.Applications, err
}

// CreateQuestion adds q to cycleID, at position when it is set.
func (c *Client) CreateQuestion(ctx context.Context, cycleID string, q *services.Question, position *int) (*services.Question, error) {
	body := struct {
		services.Question
		Position *int `json:"position,omitempty"`
	}{Question: *q, Position: position}
	var out services.Question
	if err := c.do(ctx, http.MethodPost, "/api/cycles/"+url.PathEscape(cycleID)+"/questions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateQuestion(ctx context.Context, q *services.Question) (*services.Question, error) {
	var out services.Question
	if err := c.do(ctx, http.MethodPut, "/api/questions/"+url.PathEscape(q.ID), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MoveQuestion(ctx context.Context, cycleID, movedID, targetID string) error {
	return c.do(ctx, http.MethodPost, "/api/cycles/"+url.PathEscape(cycleID)+"/questions/move",
		map[string]string{"moved_id": movedID, "target_id": targetID}, nil)
}

func (c *Client) ReorderQuestions(ctx context.Context, cycleID string, ids []string) error {
	return c.do(ctx, http.MethodPut, "/api/cycles/"+url.PathEscape(cycleID)+"/questions/order", map[string][]string{"ids": ids}, nil)
}

func (c *Client) DeleteQuestion(ctx context.Context, questionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/questions/"+url.PathEscape(questionID), nil, nil)
}

func (c *Client) MovePhase(ctx context.Context, cycleID, movedID, targetID string) error {
	return c.do(ctx, http.MethodPost, "/api/cycles/"+url.PathEscape(cycleID)+"/phases/move",
		map[string]string{"moved_id": movedID, "target_id": targetID}, nil)
}

func (c *Client) CreatePhase(ctx context.Context, cycleID string, ph *services.Phase, position *int) (*services.Phase, error) {
	body := struct {
		services.Phase
		Position *int `json:"position,omitempty"`
	}{Phase: *ph, Position: position}
	var out services.Phase
	if err := c.do(ctx, http.MethodPost, "/api/cycles/"+url.PathEscape(cycleID)+"/phases", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePhase(ctx context.Context, ph *services.Phase) (*services.Phase, error) {
	var out services.Phase
	if err := c.do(ctx, http.MethodPut, "/api/phases/"+url.PathEscape(ph.ID), ph, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePhase(ctx context.Context, phaseID string) error {
	return c.do(ctx, http.MethodDelete, "/api/phases/"+url.PathEscape(phaseID), nil, nil)
}

func (c *Client) ReorderPhases(ctx context.Context, cycleID string, ids []string) error {
	return c.do(ctx, http.MethodPut, "/api/cycles/"+url.PathEscape(cycleID)+"/phases/order", map[string][]string{"ids": ids}, nil)
}

// AssignPhase sets or, with an empty phaseID, clears the application's phase.
func (c *Client) AssignPhase(ctx context.Context, applicationID, phaseID string) error {
	var body struct {
		PhaseID *string `json:"phase_id"`
	}
	if phaseID != "" {
		body.PhaseID = &phaseID
	}
	return c.do(ctx, http.MethodPut, "/api/applications/"+url.PathEscape(applicationID)+"/phase", body, nil)
}

func (c *Client) CreateApplication(ctx context.Context, cycleID string) (*services.Application, error) {
	var app services.Application
	if err := c.do(ctx, http.MethodPost, "/api/applications", map[string]string{"cycle_id": cycleID}, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) ListResponses(ctx context.Context, applicationID string) ([]*services.Response, error) {
	var res struct {
		Responses []*services.Response `json:"responses"`
	}
	err := c.do(ctx, http.MethodGet, "/api/applications/"+url.PathEscape(applicationID)+"/responses", nil, &res)
	return res.Responses, err
}

func (c *Client) UpsertResponse(ctx context.Context, applicationID, questionID, value string) error {
	return c.do(ctx, http.MethodPut, "/api/applications/"+url.PathEscape(applicationID)+"/responses/"+url.PathEscape(questionID),
		map[string]string{"value": value}, nil)
}

func (c *Client) Submit(ctx context.Context, applicationID string) (*services.Application, error) {
	var app services.Application
	if err := c.do(ctx, http.MethodPost, "/api/applications/"+url.PathEscape(applicationID)+"/submit", nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}
