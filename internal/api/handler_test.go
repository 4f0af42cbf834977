// internal/api/handler_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/pipeline"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/repository"
	sendnotification "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/send-notification"
)

// ==========================
// Test Helper Functions
// ==========================

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl.WithFields(map[string]interface{}{"error": err})
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

type fakeStore struct {
	created    []*models.ApplicationRecord
	saved      []*models.DecisionResult
	decisions  map[string]*models.DecisionResult
	statuses   map[string]string
	createErr  error
	saveDecErr error
	getCalled  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		decisions: map[string]*models.DecisionResult{},
		statuses:  map[string]string{},
	}
}

func (f *fakeStore) CreateApplication(ctx context.Context, app *models.ApplicationRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, app)
	return nil
}

func (f *fakeStore) SaveDecision(ctx context.Context, result *models.DecisionResult) error {
	if f.saveDecErr != nil {
		return f.saveDecErr
	}
	f.saved = append(f.saved, result)
	f.decisions[result.ApplicationID] = result
	return nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, applicationID, status string) error {
	f.statuses[applicationID] = status
	return nil
}

func (f *fakeStore) GetDecision(ctx context.Context, applicationID string) (*models.DecisionResult, error) {
	f.getCalled++
	if result, ok := f.decisions[applicationID]; ok {
		return result, nil
	}
	return nil, apperrors.NewApplicationNotFoundError(applicationID)
}

func (f *fakeStore) GetApplication(ctx context.Context, applicationID string) (*models.ApplicationRecord, error) {
	for _, app := range f.created {
		if app.ApplicationID == applicationID {
			return app, nil
		}
	}
	return nil, apperrors.NewApplicationNotFoundError(applicationID)
}

type fakeNotifier struct {
	inputs []*sendnotification.Input
	err    error
}

func (f *fakeNotifier) Execute(ctx context.Context, input *sendnotification.Input) (*sendnotification.Output, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &sendnotification.Output{Status: sendnotification.StatusSent, EmailSent: true}, nil
}

type fakeSearcher struct {
	indexed    []*models.DecisionResult
	lastFilter repository.SearchFilter
	result     *repository.SearchResult
	err        error
}

func (f *fakeSearcher) IndexDecision(ctx context.Context, result *models.DecisionResult) error {
	f.indexed = append(f.indexed, result)
	return nil
}

func (f *fakeSearcher) SearchDecisions(ctx context.Context, filter repository.SearchFilter) (*repository.SearchResult, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &repository.SearchResult{}, nil
}

type testServer struct {
	router   http.Handler
	store    *fakeStore
	searcher *fakeSearcher
	notifier *fakeNotifier
	redis    *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	log := newTestLogger(t)
	store := newFakeStore()
	searcher := &fakeSearcher{}
	notifier := &fakeNotifier{}

	handler := NewHandler(Options{
		Engine:   pipeline.NewEngine(log),
		Store:    store,
		Searcher: searcher,
		Notifier: notifier,
		Cache:    cache,
		CacheTTL: time.Minute,
		Health: map[string]HealthChecker{
			"redis": func() error { return cache.Ping(context.Background()).Err() },
		},
	}, log)

	return &testServer{
		router:   NewRouter(handler, log),
		store:    store,
		searcher: searcher,
		notifier: notifier,
		redis:    mr,
	}
}

func validApplicationBody() map[string]interface{} {
	return map[string]interface{}{
		"application_id":         "app-strong-001",
		"applicant_name":         "Priya Sharma",
		"email":                  "priya.sharma@example.com",
		"phone":                  "9876543210",
		"credit_history_months":  96,
		"total_accounts":         6,
		"credit_utilization_pct": 15,
		"recent_inquiries":       0,
		"on_time_payments":       95,
		"late_payments":          1,
		"monthly_income":         9500,
		"employment_status":      "employed",
		"income_verified":        true,
		"requested_amount":       100000,
		"tenure_months":          120,
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// ==========================
// Submit
// ==========================

func TestAPI_SubmitApplication_Approved(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", validApplicationBody())

	require.Equal(t, http.StatusCreated, rec.Code)

	var result models.DecisionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.DecisionApproved, result.FinalDecision)
	assert.Equal(t, 774, result.CreditScore)
	assert.Equal(t, 100000.0, result.ApprovedAmount)

	require.Len(t, srv.store.created, 1)
	require.Len(t, srv.store.saved, 1)
	require.Len(t, srv.searcher.indexed, 1)
}

func TestAPI_SubmitApplication_GeneratesID(t *testing.T) {
	srv := newTestServer(t)

	body := validApplicationBody()
	delete(body, "application_id")

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", body)

	require.Equal(t, http.StatusCreated, rec.Code)

	var result models.DecisionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ApplicationID)
}

func TestAPI_SubmitApplication_InvalidInput(t *testing.T) {
	srv := newTestServer(t)

	body := validApplicationBody()
	body["applicant_name"] = ""
	body["requested_amount"] = -5

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", body)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "field_errors")
	assert.Empty(t, srv.store.created)
}

func TestAPI_SubmitApplication_Duplicate(t *testing.T) {
	srv := newTestServer(t)
	srv.store.createErr = apperrors.NewDuplicateApplicationError("app-strong-001")

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", validApplicationBody())

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_SubmitApplication_DuplicateIsNotReEvaluated(t *testing.T) {
	log := newTestLogger(t)
	store := newFakeStore()
	store.createErr = apperrors.NewDuplicateApplicationError("app-strong-001")

	// A nil engine panics if the pipeline runs; a resubmission must be
	// rejected on the duplicate check before any evaluation.
	handler := NewHandler(Options{Engine: nil, Store: store}, log)
	router := NewRouter(handler, log)

	rec := doJSON(t, router, http.MethodPost, "/loan-applications", validApplicationBody())

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, store.saved)
}

func TestAPI_SubmitApplication_MarksProcessing(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", validApplicationBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "processing", srv.store.statuses["app-strong-001"])
}

func TestAPI_SubmitApplication_NotifiesApplicant(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", validApplicationBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, srv.notifier.inputs, 1)
	assert.Equal(t, "app-strong-001", srv.notifier.inputs[0].Application.ApplicationID)
	assert.Equal(t, models.DecisionApproved, srv.notifier.inputs[0].Result.FinalDecision)
}

func TestAPI_SubmitApplication_NotifierFailureDoesNotFailRequest(t *testing.T) {
	srv := newTestServer(t)
	srv.notifier.err = errors.New("smtp unreachable")

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", validApplicationBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, srv.store.saved, 1)
}

func TestAPI_SubmitApplication_PersistFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.store.saveDecErr = apperrors.NewDatabaseInsertFailedError(errors.New("connection refused"))

	rec := doJSON(t, srv.router, http.MethodPost, "/loan-applications", validApplicationBody())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ==========================
// Get
// ==========================

func TestAPI_GetDecision_CacheMissThenHit(t *testing.T) {
	srv := newTestServer(t)

	stored := &models.DecisionResult{
		ApplicationID: "app-001",
		FinalDecision: models.DecisionApproved,
		CreditScore:   774,
	}
	srv.store.decisions["app-001"] = stored

	rec := doJSON(t, srv.router, http.MethodGet, "/loan-applications/app-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, srv.store.getCalled)

	// Second read is served from Redis.
	rec = doJSON(t, srv.router, http.MethodGet, "/loan-applications/app-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, srv.store.getCalled)

	var result models.DecisionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 774, result.CreditScore)
}

func TestAPI_GetDecision_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.router, http.MethodGet, "/loan-applications/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_GetDecision_UndecidedApplicationIsProcessing(t *testing.T) {
	srv := newTestServer(t)
	srv.store.created = append(srv.store.created, &models.ApplicationRecord{ApplicationID: "app-pending-001"})

	rec := doJSON(t, srv.router, http.MethodGet, "/loan-applications/app-pending-001", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"processing"`)
}

// ==========================
// List
// ==========================

func TestAPI_ListDecisions_PassesFilter(t *testing.T) {
	srv := newTestServer(t)
	srv.searcher.result = &repository.SearchResult{TotalHits: 2}

	rec := doJSON(t, srv.router, http.MethodGet, "/loan-applications?decision=approved&risk_level=low&limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", srv.searcher.lastFilter.Decision)
	assert.Equal(t, "low", srv.searcher.lastFilter.RiskLevel)
	assert.Equal(t, 5, srv.searcher.lastFilter.Limit)
}

func TestAPI_ListDecisions_BadLimit(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.router, http.MethodGet, "/loan-applications?limit=abc", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Health
// ==========================

func TestAPI_Health_OK(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}
