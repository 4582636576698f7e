package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/store"
)

// scriptedLanguage maps client messages to extraction results so multi-turn
// scenarios stay deterministic.
func scriptedLanguage(script map[string]map[string]string) *mockLanguageService {
	return &mockLanguageService{
		extractFunc: func(ctx context.Context, req ExtractionRequest) (map[string]string, error) {
			return script[req.Text], nil
		},
	}
}

func newTestOrchestrator(t *testing.T, language LanguageService) (*Orchestrator, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SaveSurvey(*standupSurvey()); err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}
	return NewOrchestrator(st, language), st
}

func TestOrchestrator_FullStandupSession(t *testing.T) {
	language := scriptedLanguage(map[string]map[string]string{
		"KCD-12":     {"yesterdayWork": "KCD-12"},
		"KCD-14":     {"todayPlan": "KCD-14"},
		"No, thanks": {"roadblocks": "No, thanks"},
	})
	orch, st := newTestOrchestrator(t, language)
	ctx := context.Background()

	init, err := orch.StartSession(ctx, "standup-demo")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if init.Completed {
		t.Fatal("expected a fresh session to be open")
	}
	if init.Message != "What did you work on yesterday?" {
		t.Errorf("unexpected first question %q", init.Message)
	}

	turn1, err := orch.HandleTurn(ctx, init.SessionID, "KCD-12")
	if err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	if turn1.Completed || turn1.Message != "Got it, thanks.\n\nWhat is your plan for today?" {
		t.Errorf("unexpected turn 1 result %+v", turn1)
	}

	turn2, err := orch.HandleTurn(ctx, init.SessionID, "KCD-14")
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if turn2.Completed || turn2.Message != "Sounds good.\n\nAny roadblocks?" {
		t.Errorf("unexpected turn 2 result %+v", turn2)
	}

	turn3, err := orch.HandleTurn(ctx, init.SessionID, "No, thanks")
	if err != nil {
		t.Fatalf("turn 3 failed: %v", err)
	}
	if !turn3.Completed {
		t.Fatal("expected the session to complete after the final answer")
	}
	if turn3.Message != "Thanks, that is everything for today." {
		t.Errorf("unexpected completion message %q", turn3.Message)
	}

	rep, err := st.GetReport(init.SessionID)
	if err != nil || rep == nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if len(rep.Data) != 3 {
		t.Fatalf("expected 3 data entries, got %d", len(rep.Data))
	}
	wantKeys := []string{"yesterdayWork", "todayPlan", "roadblocks"}
	for i, key := range wantKeys {
		if rep.Data[i].Key != key {
			t.Errorf("data entry %d: expected key %s, got %s", i, key, rep.Data[i].Key)
		}
		if rep.Data[i].Type != models.DataTypeFreeform {
			t.Errorf("data entry %d: expected freeform, got %s", i, rep.Data[i].Type)
		}
	}
	// Init message plus three client/agent pairs.
	if len(rep.Conversation) != 7 {
		t.Errorf("expected 7 transcript entries, got %d", len(rep.Conversation))
	}

	state, err := st.GetSession(init.SessionID)
	if err != nil || state == nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if !state.Completed {
		t.Error("expected session state marked completed")
	}
}

func TestOrchestrator_SkipAheadAnswer(t *testing.T) {
	language := scriptedLanguage(map[string]map[string]string{
		"Today KCD-12, tomorrow KCD-13": {
			"yesterdayWork": "KCD-12",
			"todayPlan":     "KCD-13",
		},
	})
	orch, st := newTestOrchestrator(t, language)
	ctx := context.Background()

	init, err := orch.StartSession(ctx, "standup-demo")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	turn, err := orch.HandleTurn(ctx, init.SessionID, "Today KCD-12, tomorrow KCD-13")
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if turn.Completed {
		t.Fatal("expected the session to stay open")
	}
	if turn.Message != "Got it, thanks.\n\nAny roadblocks?" {
		t.Errorf("expected the already-answered question skipped, got %q", turn.Message)
	}

	rep, err := st.GetReport(init.SessionID)
	if err != nil || rep == nil {
		t.Fatalf("failed to load report: %v", err)
	}
	entries := map[string]models.DataEntry{}
	for _, e := range rep.Data {
		entries[e.Key] = e
	}
	if entries["yesterdayWork"].Type != models.DataTypeFreeform {
		t.Errorf("expected yesterdayWork freeform, got %s", entries["yesterdayWork"].Type)
	}
	if e := entries["todayPlan"]; e.Type != models.DataTypeExtracted || e.Value != "KCD-13" {
		t.Errorf("expected todayPlan extracted with the inferred value, got %+v", e)
	}

	state, err := st.GetSession(init.SessionID)
	if err != nil || state == nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if state.CurrentOrder != 3 {
		t.Errorf("expected session advanced to the roadblocks question, got order %d", state.CurrentOrder)
	}
}

func TestOrchestrator_FailBranchRepeatsQuestion(t *testing.T) {
	orch, st := newTestOrchestrator(t, &mockLanguageService{})
	ctx := context.Background()

	init, err := orch.StartSession(ctx, "standup-demo")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	turn, err := orch.HandleTurn(ctx, init.SessionID, "asdf")
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if turn.Completed {
		t.Fatal("expected the session to stay open")
	}
	want := "Sorry, I could not find an answer in that.\n\nWhat did you work on yesterday?"
	if turn.Message != want {
		t.Errorf("unexpected fail message %q", turn.Message)
	}

	state, err := st.GetSession(init.SessionID)
	if err != nil || state == nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if state.CurrentOrder != 1 {
		t.Errorf("expected session to stay on the first question, got order %d", state.CurrentOrder)
	}

	// The failed exchange is still recorded.
	rep, err := st.GetReport(init.SessionID)
	if err != nil || rep == nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if len(rep.Conversation) != 3 {
		t.Errorf("expected init, client, and retry entries, got %d", len(rep.Conversation))
	}
	if len(rep.Data) != 0 {
		t.Errorf("expected no data entries, got %d", len(rep.Data))
	}
}

func TestOrchestrator_TurnAfterCompletionIsNoOp(t *testing.T) {
	language := scriptedLanguage(map[string]map[string]string{
		"all done": {
			"yesterdayWork": "a",
			"todayPlan":     "b",
			"roadblocks":    "none",
		},
	})
	orch, st := newTestOrchestrator(t, language)
	ctx := context.Background()

	init, err := orch.StartSession(ctx, "standup-demo")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := orch.HandleTurn(ctx, init.SessionID, "all done"); err != nil {
		t.Fatalf("completing turn failed: %v", err)
	}

	before, err := st.GetReport(init.SessionID)
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}

	turn, err := orch.HandleTurn(ctx, init.SessionID, "anything else?")
	if err != nil {
		t.Fatalf("post-completion turn failed: %v", err)
	}
	if !turn.Completed {
		t.Error("expected the no-op turn to re-acknowledge completion")
	}

	after, err := st.GetReport(init.SessionID)
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if after.Version != before.Version || len(after.Conversation) != len(before.Conversation) {
		t.Error("expected the report untouched after completion")
	}
}

func TestOrchestrator_UnknownSurvey(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &mockLanguageService{})
	_, err := orch.StartSession(context.Background(), "not-a-survey")
	if !errors.Is(err, models.ErrSurveyNotFound) {
		t.Fatalf("expected survey-not-found, got %v", err)
	}
}

func TestOrchestrator_UnknownSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &mockLanguageService{})
	_, err := orch.HandleTurn(context.Background(), "s_missing", "hello")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected session-not-found, got %v", err)
	}
}

func TestOrchestrator_TransportErrorLeavesStateUntouched(t *testing.T) {
	language := &mockLanguageService{
		extractFunc: func(ctx context.Context, req ExtractionRequest) (map[string]string, error) {
			return nil, models.ErrCollaboratorUnavailable
		},
	}
	orch, st := newTestOrchestrator(t, language)
	ctx := context.Background()

	init, err := orch.StartSession(ctx, "standup-demo")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	before, err := st.GetReport(init.SessionID)
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}

	_, err = orch.HandleTurn(ctx, init.SessionID, "KCD-12")
	if !errors.Is(err, models.ErrCollaboratorUnavailable) {
		t.Fatalf("expected collaborator-unavailable, got %v", err)
	}

	after, err := st.GetReport(init.SessionID)
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if after.Version != before.Version || len(after.Conversation) != len(before.Conversation) {
		t.Error("expected nothing persisted from the aborted turn")
	}
}
