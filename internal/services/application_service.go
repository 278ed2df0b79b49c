package services

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"
)

// ApplicationFilter narrows the reviewer board. PhaseID and Unphased are
// mutually exclusive.
type ApplicationFilter struct {
	CycleID       string
	PhaseID       string
	Unphased      bool
	SubmittedOnly bool
}

type ApplicationStore interface {
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	ListCycles(ctx context.Context) ([]*Cycle, error)
	GetQuestion(ctx context.Context, id string) (*Question, error)
	ListQuestionsByCycle(ctx context.Context, cycleID string) ([]*Question, error)
	GetPhase(ctx context.Context, id string) (*Phase, error)
	GetUser(ctx context.Context, id string) (*User, error)

	// InsertApplication returns a duplicate error when the user already has
	// an application for the cycle.
	InsertApplication(ctx context.Context, a *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	GetApplicationByUser(ctx context.Context, userID, cycleID string) (*Application, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]*Application, error)
	// MarkSubmitted flips a draft to submitted. It reports false when the
	// application was already submitted or does not exist.
	MarkSubmitted(ctx context.Context, applicationID string, at time.Time) (bool, error)
	SetApplicationPhase(ctx context.Context, applicationID, phaseID string) (bool, error)

	GetResponse(ctx context.Context, applicationID, questionID string) (*Response, error)
	// UpsertDraftResponse writes r only while its application is a draft and
	// reports whether the write happened.
	UpsertDraftResponse(ctx context.Context, r *Response) (bool, error)
	ListResponses(ctx context.Context, applicationID string) ([]*Response, error)

	AddAudit(ctx context.Context, entry AuditEntry)
}

// ApplicationService drives an application from creation through submission
// and phase assignment.
type ApplicationService struct {
	store    ApplicationStore
	storage  ObjectStorage
	notifier SubmissionNotifier
	logger   *log.Logger
	now      func() time.Time
	idGen    func() string
	// dispatch runs fire-and-forget work such as submission notices.
	dispatch func(func())
}

func NewApplicationService(store ApplicationStore, storage ObjectStorage, notifier SubmissionNotifier, logger *log.Logger) *ApplicationService {
	if logger == nil {
		logger = log.Default()
	}
	return &ApplicationService{
		store:    store,
		storage:  storage,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    func() string { return shortID(12) },
		dispatch: func(f func()) { go f() },
	}
}

// UploadKeyPrefix is the namespace for files attached to one answer.
func UploadKeyPrefix(applicationID, questionID string) string {
	return "applications/" + applicationID + "/" + questionID + "/"
}

// ownsUploadKey reports whether key is a canonical object key inside prefix.
// Keys with dot segments are rejected even when they would resolve inside it.
func ownsUploadKey(key, prefix string) bool {
	if path.Clean(key) != key {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return false
		}
	}
	return strings.HasPrefix(key, prefix) && len(key) > len(prefix)
}

func (s *ApplicationService) activeCycle(ctx context.Context) (*Cycle, error) {
	return activeCycle(ctx, s.store, s.now(), s.logger)
}

// requireOpenCycle fails unless the application's cycle is the active one.
func (s *ApplicationService) requireOpenCycle(ctx context.Context, app *Application) (*Cycle, error) {
	cycle, err := s.activeCycle(ctx)
	if err != nil {
		if IsCode(err, ErrorNotFound) {
			return nil, NewInvalidReferenceError("cycle is not open")
		}
		return nil, err
	}
	if cycle.ID != app.CycleID {
		return nil, NewInvalidReferenceError("cycle is not open")
	}
	return cycle, nil
}

// ownedApplication loads an application and checks the caller may act on it
// as its applicant.
func (s *ApplicationService) ownedApplication(ctx context.Context, p Principal, id string) (*Application, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidError("application_id required")
	}
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError("application not found")
	}
	if app.UserID != p.ID {
		return nil, NewForbiddenError("not your application")
	}
	return app, nil
}

// Create opens a draft for the caller in cycleID, which must be the active cycle.
func (s *ApplicationService) Create(ctx context.Context, p Principal, cycleID string) (*Application, error) {
	if p.ID == "" {
		return nil, NewUnauthorizedError("sign in required")
	}
	cycle, err := s.activeCycle(ctx)
	if err != nil {
		if IsCode(err, ErrorNotFound) {
			return nil, NewInvalidReferenceError("no cycle is open")
		}
		return nil, err
	}
	if cycleID == "" {
		cycleID = cycle.ID
	}
	if cycleID != cycle.ID {
		return nil, NewInvalidReferenceError("cycle is not open")
	}
	existing, err := s.store.GetApplicationByUser(ctx, p.ID, cycleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, checkTransition(existing, opCreate)
	}
	app := &Application{
		ID:        s.idGen(),
		UserID:    p.ID,
		CycleID:   cycleID,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertApplication(ctx, app); err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, AuditEntry{Time: app.CreatedAt, Actor: p.ID, Action: "create_application", Target: app.ID, Note: cycleID})
	return app, nil
}

// Get returns the user's application for cycleID, or nil if there is none.
// An empty cycleID means the active cycle.
func (s *ApplicationService) Get(ctx context.Context, p Principal, userID, cycleID string) (*Application, error) {
	if userID == "" {
		userID = p.ID
	}
	if userID != p.ID && !p.IsReviewer() {
		return nil, NewForbiddenError("not your application")
	}
	if cycleID == "" {
		cycle, err := s.activeCycle(ctx)
		if err != nil {
			if IsCode(err, ErrorNotFound) {
				return nil, nil
			}
			return nil, err
		}
		cycleID = cycle.ID
	}
	return s.store.GetApplicationByUser(ctx, userID, cycleID)
}

// UpsertResponse records the caller's answer to one question of a draft.
func (s *ApplicationService) UpsertResponse(ctx context.Context, p Principal, applicationID, questionID, value string) (*Response, error) {
	app, err := s.ownedApplication(ctx, p, applicationID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(app, opUpsertResponse); err != nil {
		return nil, err
	}
	if _, err := s.requireOpenCycle(ctx, app); err != nil {
		return nil, err
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil || q.CycleID != app.CycleID {
		return nil, NewInvalidReferenceError("question does not belong to this cycle")
	}

	var previous *Response
	if q.Type == TypeFileUpload {
		if value != "" && !ownsUploadKey(value, UploadKeyPrefix(app.ID, q.ID)) {
			return nil, NewValidationError(q.ID, questionLabel(q)+": file key does not belong to this answer")
		}
		previous, err = s.store.GetResponse(ctx, app.ID, q.ID)
		if err != nil {
			return nil, err
		}
	}
	if q.Type == TypeCheckbox && value != "" {
		selected, err := DecodeSelection(value)
		if err != nil {
			return nil, NewValidationError(q.ID, questionLabel(q)+": malformed selection")
		}
		value = EncodeSelection(selected)
	}

	r := &Response{
		ID:            s.idGen(),
		QuestionID:    q.ID,
		ApplicationID: app.ID,
		Value:         value,
		UpdatedAt:     s.now(),
	}
	ok, err := s.store.UpsertDraftResponse(ctx, r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewStateError("application " + app.ID + " is submitted; upsert_response not allowed")
	}
	if previous != nil && previous.Value != "" && previous.Value != value {
		s.releaseObject(ctx, previous.Value)
	}
	return r, nil
}

func (s *ApplicationService) releaseObject(ctx context.Context, key string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.ReleaseStoredObject(ctx, key); err != nil {
		s.logger.Printf("release stored object %s: %v", key, err)
	}
}

// ListResponses returns the caller's answers for their application.
func (s *ApplicationService) ListResponses(ctx context.Context, p Principal, applicationID string) ([]*Response, error) {
	app, err := s.ownedApplication(ctx, p, applicationID)
	if err != nil {
		return nil, err
	}
	return s.store.ListResponses(ctx, app.ID)
}

// RequestUpload issues an upload target for a FILE_UPLOAD answer of a draft.
func (s *ApplicationService) RequestUpload(ctx context.Context, p Principal, applicationID, questionID string, meta FileMeta) (*UploadTarget, error) {
	if s.storage == nil {
		return nil, NewInvalidError("file storage is not configured")
	}
	app, err := s.ownedApplication(ctx, p, applicationID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(app, opRequestUpload); err != nil {
		return nil, err
	}
	if _, err := s.requireOpenCycle(ctx, app); err != nil {
		return nil, err
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil || q.CycleID != app.CycleID {
		return nil, NewInvalidReferenceError("question does not belong to this cycle")
	}
	if q.Type != TypeFileUpload {
		return nil, NewInvalidError("question does not accept files")
	}
	if strings.TrimSpace(meta.Name) == "" {
		return nil, NewInvalidError("file name required")
	}
	meta.Prefix = UploadKeyPrefix(app.ID, q.ID)
	return s.storage.IssueUploadTarget(ctx, meta)
}

// Submit validates every question of the cycle against the stored answers and
// freezes the application. The notification is sent after the state change
// and its failure does not affect the result.
func (s *ApplicationService) Submit(ctx context.Context, p Principal, applicationID string) (*Application, error) {
	app, err := s.ownedApplication(ctx, p, applicationID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(app, opSubmit); err != nil {
		return nil, err
	}
	cycle, err := s.store.GetCycle(ctx, app.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, NewInvalidReferenceError("cycle not found")
	}
	now := s.now()
	if !cycle.IsActive(now) {
		return nil, NewStateError("cycle " + cycle.DisplayName + " is closed")
	}
	if err := s.validateAll(ctx, app); err != nil {
		return nil, err
	}
	ok, err := s.store.MarkSubmitted(ctx, app.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewStateError("application " + app.ID + " is submitted; submit not allowed")
	}
	app.Submitted = true
	app.SubmittedAt = &now
	s.store.AddAudit(ctx, AuditEntry{Time: now, Actor: p.ID, Action: "submit_application", Target: app.ID, Note: cycle.ID})
	s.notifySubmitted(ctx, p, cycle)
	return app, nil
}

func (s *ApplicationService) validateAll(ctx context.Context, app *Application) error {
	questions, err := s.store.ListQuestionsByCycle(ctx, app.CycleID)
	if err != nil {
		return err
	}
	responses, err := s.store.ListResponses(ctx, app.ID)
	if err != nil {
		return err
	}
	byQuestion := make(map[string]string, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r.Value
	}
	for _, q := range questions {
		a := Answer{}
		if v, ok := byQuestion[q.ID]; ok {
			a = TextAnswer(v)
		}
		if err := ValidateAnswer(q, ModeTrustedServer, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *ApplicationService) notifySubmitted(ctx context.Context, p Principal, cycle *Cycle) {
	if s.notifier == nil {
		return
	}
	email := p.Email
	if email == "" {
		u, err := s.store.GetUser(ctx, p.ID)
		if err != nil || u == nil {
			s.logger.Printf("submission notice: no email for user %s", p.ID)
			return
		}
		email = u.Email
	}
	bg := context.WithoutCancel(ctx)
	name := cycle.DisplayName
	s.dispatch(func() {
		if err := s.notifier.SendSubmissionNotification(bg, email, name); err != nil {
			s.logger.Printf("submission notice to %s failed: %v", email, err)
		}
	})
}

// AssignPhase places an application in a phase of its own cycle. An empty
// phaseID clears the assignment. Legal for drafts and submitted applications.
func (s *ApplicationService) AssignPhase(ctx context.Context, p Principal, applicationID, phaseID string) (*Application, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(app, opAssignPhase); err != nil {
		return nil, err
	}
	if phaseID != "" {
		phase, err := s.store.GetPhase(ctx, phaseID)
		if err != nil {
			return nil, err
		}
		if phase == nil || phase.CycleID != app.CycleID {
			return nil, NewInvalidReferenceError("phase does not belong to the application's cycle")
		}
	}
	ok, err := s.store.SetApplicationPhase(ctx, app.ID, phaseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotFoundError("application not found")
	}
	from := app.PhaseID
	app.PhaseID = phaseID
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: p.ID, Action: "assign_phase", Target: app.ID, Note: fmt.Sprintf("%s -> %s", phaseLabel(from), phaseLabel(phaseID))})
	return app, nil
}

func phaseLabel(id string) string {
	if id == "" {
		return "unphased"
	}
	return id
}

// ListApplications is the reviewer board query.
func (s *ApplicationService) ListApplications(ctx context.Context, p Principal, f ApplicationFilter) ([]*Application, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	if strings.TrimSpace(f.CycleID) == "" {
		return nil, NewInvalidError("cycle_id required")
	}
	if f.PhaseID != "" && f.Unphased {
		return nil, NewInvalidError("phase_id and unphased are mutually exclusive")
	}
	return s.store.ListApplications(ctx, f)
}

// AnswerView is one question with the applicant's decoded answer.
type AnswerView struct {
	QuestionID  string       `json:"question_id"`
	Question    string       `json:"question"`
	Type        QuestionType `json:"type"`
	Value       string       `json:"value"`
	Selected    []string     `json:"selected,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
}

type ApplicationDetail struct {
	Application *Application `json:"application"`
	Email       string       `json:"email,omitempty"`
	Answers     []AnswerView `json:"answers"`
}

// GetApplicationDetail returns an application with its answers in question
// order. Reviewers may read any application, applicants only their own.
func (s *ApplicationService) GetApplicationDetail(ctx context.Context, p Principal, applicationID string) (*ApplicationDetail, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError("application not found")
	}
	if app.UserID != p.ID && !p.IsReviewer() {
		return nil, NewForbiddenError("not your application")
	}
	questions, err := s.store.ListQuestionsByCycle(ctx, app.CycleID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(responses))
	for _, r := range responses {
		values[r.QuestionID] = r.Value
	}
	detail := &ApplicationDetail{Application: app, Answers: make([]AnswerView, 0, len(questions))}
	if u, err := s.store.GetUser(ctx, app.UserID); err == nil && u != nil {
		detail.Email = u.Email
	}
	for _, q := range questions {
		v := values[q.ID]
		av := AnswerView{QuestionID: q.ID, Question: q.DisplayName, Type: q.Type, Value: v}
		switch q.Type {
		case TypeCheckbox:
			if sel, err := DecodeSelection(v); err == nil {
				av.Selected = sel
			} else {
				s.logger.Printf("application %s: undecodable selection for %s: %v", app.ID, q.ID, err)
			}
		case TypeFileUpload:
			if v != "" && s.storage != nil {
				u, err := s.storage.IssueDownloadURL(ctx, v)
				if err != nil {
					s.logger.Printf("application %s: download url for %s: %v", app.ID, v, err)
				} else {
					av.DownloadURL = u
				}
			}
		}
		detail.Answers = append(detail.Answers, av)
	}
	return detail, nil
}
