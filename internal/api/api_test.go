package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/api"
	"github.com/BTreeMap/SurveyPipe/internal/flow"
	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/report"
	"github.com/BTreeMap/SurveyPipe/internal/store"
	"github.com/BTreeMap/SurveyPipe/internal/testutil"
)

func TestCreateSurvey(t *testing.T) {
	server, _ := testutil.NewTestServer()
	handler := server.Handler()

	body := models.SurveyCreateRequest{
		ExternalID: "standup",
		Name:       "Daily standup",
		Questions:  testutil.StandupSurvey("standup").Questions,
	}
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/surveys", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create survey")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestCreateSurvey_Duplicate(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()
	if err := st.SaveSurvey(testutil.StandupSurvey("standup")); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}

	body := models.SurveyCreateRequest{
		ExternalID: "standup",
		Questions:  testutil.StandupSurvey("standup").Questions,
	}
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/surveys", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "duplicate survey")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestCreateSurvey_Validation(t *testing.T) {
	server, _ := testutil.NewTestServer()
	handler := server.Handler()

	tests := []struct {
		name string
		body interface{}
	}{
		{"no questions", models.SurveyCreateRequest{ExternalID: "empty"}},
		{"missing external id", models.SurveyCreateRequest{Questions: testutil.StandupSurvey("x").Questions}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := testutil.CreateHTTPRequest(t, http.MethodPost, "/surveys", tc.body)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, tc.name)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/surveys", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid JSON")
}

func TestGetSurvey(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()
	if err := st.SaveSurvey(testutil.StandupSurvey("standup")); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/surveys/standup", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get survey")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	result, ok := response["result"].(map[string]interface{})
	if !ok || result["external_id"] != "standup" {
		t.Errorf("unexpected survey payload %v", response["result"])
	}

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/surveys/missing", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown survey")
}

// runTurn posts one client message and returns the decoded result payload.
func runTurn(t *testing.T, handler http.Handler, externalID, sessionID, answer string) map[string]interface{} {
	t.Helper()
	body := models.SessionRespondRequest{SessionID: sessionID, AnswerText: answer}
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/s/"+externalID+"/respond", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "respond "+answer)
	response := testutil.AssertJSONResponse(t, rr, "ok")
	result, ok := response["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing result payload in %v", response)
	}
	return result
}

func TestSessionFlow(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()
	if err := st.SaveSurvey(testutil.StandupSurvey("standup")); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/s/standup/init", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "init session")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	initResult, ok := response["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing init payload in %v", response)
	}
	sessionID, _ := initResult["session_id"].(string)
	if sessionID == "" {
		t.Fatal("init returned no session id")
	}
	if initResult["message"] != "What did you work on yesterday?" {
		t.Errorf("unexpected first question %v", initResult["message"])
	}

	turn1 := runTurn(t, handler, "standup", sessionID, "KCD-12")
	if turn1["message"] != "Got it.\n\nWhat is your plan for today?" {
		t.Errorf("unexpected turn 1 message %v", turn1["message"])
	}
	if turn1["completed"] != false {
		t.Error("expected the session to stay open after turn 1")
	}

	turn2 := runTurn(t, handler, "standup", sessionID, "KCD-14")
	if turn2["message"] != "Noted.\n\nAny roadblocks?" {
		t.Errorf("unexpected turn 2 message %v", turn2["message"])
	}

	turn3 := runTurn(t, handler, "standup", sessionID, "No, thanks")
	if turn3["completed"] != true {
		t.Error("expected the session completed after the final answer")
	}
	if turn3["message"] != "Thanks, that is everything for today." {
		t.Errorf("unexpected completion message %v", turn3["message"])
	}

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+sessionID+"/report", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get report")
	response = testutil.AssertJSONResponse(t, rr, "ok")
	report, ok := response["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing report payload in %v", response)
	}
	data, ok := report["data"].([]interface{})
	if !ok || len(data) != 3 {
		t.Errorf("expected 3 collected data entries, got %v", report["data"])
	}
}

func TestInitSession_UnknownSurvey(t *testing.T) {
	server, _ := testutil.NewTestServer()
	handler := server.Handler()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/s/missing/init", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "init unknown survey")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestRespond_UnknownSession(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()
	if err := st.SaveSurvey(testutil.StandupSurvey("standup")); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}

	body := models.SessionRespondRequest{SessionID: "s_missing", AnswerText: "hello"}
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/s/standup/respond", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "respond unknown session")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestRespond_Validation(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()
	if err := st.SaveSurvey(testutil.StandupSurvey("standup")); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}

	body := models.SessionRespondRequest{SessionID: "s_abc", AnswerText: "   "}
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/s/standup/respond", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "blank answer")
}

// racingStore lands a concurrent report write between a turn's read and its
// save, so the turn's save runs against a stale version.
type racingStore struct {
	*store.InMemoryStore
	race bool
}

func (s *racingStore) GetReport(sessionID string) (*models.Report, error) {
	rep, err := s.InMemoryStore.GetReport(sessionID)
	if err != nil || rep == nil || !s.race {
		return rep, err
	}
	if err := s.InMemoryStore.SaveReport(report.Clone(rep), rep.Version); err != nil {
		return nil, err
	}
	return rep, nil
}

func TestRespond_ConcurrentUpdateConflict(t *testing.T) {
	st := &racingStore{InMemoryStore: store.NewInMemoryStore()}
	server := api.NewServer(st, flow.NewPassthroughLanguageService())
	handler := server.Handler()
	if err := st.SaveSurvey(testutil.StandupSurvey("standup")); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/s/standup/init", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "init session")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	initResult, ok := response["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing init payload in %v", response)
	}
	sessionID, _ := initResult["session_id"].(string)
	if sessionID == "" {
		t.Fatal("init returned no session id")
	}

	st.race = true
	body := models.SessionRespondRequest{SessionID: sessionID, AnswerText: "KCD-12"}
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/s/standup/respond", body)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "concurrent update")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestGetReport_NotFound(t *testing.T) {
	server, _ := testutil.NewTestServer()
	handler := server.Handler()

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/s_missing/report", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing report")
}

func TestHealth(t *testing.T) {
	server, _ := testutil.NewTestServer()
	handler := server.Handler()

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health check")
}
