// Package testutil provides common test utilities and helpers for SurveyPipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/api"
	"github.com/BTreeMap/SurveyPipe/internal/flow"
	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/store"
)

// NewTestServer creates a test API server with an in-memory store and the
// passthrough language collaborator, returning the store for seeding.
func NewTestServer() (*api.Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	server := api.NewServer(st, flow.NewPassthroughLanguageService())
	return server, st
}

// StandupSurvey returns a three-question survey in the shape used across the
// integration tests, saved under the given external id.
func StandupSurvey(externalID string) models.Survey {
	return models.Survey{
		ID:         "sv_" + externalID,
		ExternalID: externalID,
		Name:       "Daily standup",
		Questions: []models.QuestionTemplate{
			{ID: 1, Order: 1, DataKey: "yesterdayWork", Type: models.QuestionTypeFreeform, QuestionTemplate: "What did you work on yesterday?", SuccessTemplate: "Got it.", FailTemplate: "Sorry, I didn't catch that."},
			{ID: 2, Order: 2, DataKey: "todayPlan", Type: models.QuestionTypeFreeform, QuestionTemplate: "What is your plan for today?", SuccessTemplate: "Noted.", FailTemplate: "Could you rephrase that?"},
			{ID: 3, Order: 3, DataKey: "roadblocks", Type: models.QuestionTypeFreeform, QuestionTemplate: "Any roadblocks?", SuccessTemplate: "Thanks, that is everything for today.", FailTemplate: "Sorry, I didn't catch that.", Final: true},
		},
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, url, reqBody)
	req.Header.Set("Content-Type", "application/json")
	return req
}
