package report

import (
	"reflect"
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

func TestUpsertFreeform_UniquePerKey(t *testing.T) {
	rep := New("s_test")

	firstID := UpsertFreeform(rep, "yesterdayWork", "KCD-12")
	secondID := UpsertFreeform(rep, "yesterdayWork", "KCD-13")

	if firstID != secondID {
		t.Errorf("expected upsert to keep the entry id, got %q then %q", firstID, secondID)
	}

	count := 0
	for _, entry := range rep.Data {
		if entry.Key == "yesterdayWork" && entry.Type == models.DataTypeFreeform {
			count++
			if entry.Value != "KCD-13" {
				t.Errorf("expected overwritten value KCD-13, got %q", entry.Value)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one freeform entry for key, got %d", count)
	}
}

func TestUpsertFreeform_DistinctKeys(t *testing.T) {
	rep := New("s_test")
	UpsertFreeform(rep, "yesterdayWork", "KCD-12")
	UpsertFreeform(rep, "todayPlan", "KCD-14")

	if len(rep.Data) != 2 {
		t.Errorf("expected two entries for two keys, got %d", len(rep.Data))
	}
}

func TestAppendExtracted_NeverCollapses(t *testing.T) {
	rep := New("s_test")

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		ids[AppendExtracted(rep, "todayPlan", "KCD-13")] = true
	}

	if len(rep.Data) != 5 {
		t.Errorf("expected 5 extracted entries, got %d", len(rep.Data))
	}
	if len(ids) != 5 {
		t.Errorf("expected 5 distinct entry ids, got %d", len(ids))
	}
}

func TestFlatten_FreeformWinsRegardlessOfOrder(t *testing.T) {
	rep := New("s_test")
	AppendExtracted(rep, "todayPlan", "extracted-early")
	UpsertFreeform(rep, "todayPlan", "freeform-value")
	AppendExtracted(rep, "todayPlan", "extracted-late")

	flat := Flatten(rep)
	if flat["todayPlan"] != "freeform-value" {
		t.Errorf("expected freeform entry to win, got %q", flat["todayPlan"])
	}
}

// Locks in the first-inserted-wins rule for extracted-only keys.
func TestFlatten_FirstExtractedWins(t *testing.T) {
	rep := New("s_test")
	AppendExtracted(rep, "roadblocks", "first")
	AppendExtracted(rep, "roadblocks", "second")
	AppendExtracted(rep, "roadblocks", "third")

	flat := Flatten(rep)
	if flat["roadblocks"] != "first" {
		t.Errorf("expected first extracted entry to win, got %q", flat["roadblocks"])
	}
}

func TestFlatten_Idempotent(t *testing.T) {
	rep := New("s_test")
	UpsertFreeform(rep, "yesterdayWork", "KCD-12")
	AppendExtracted(rep, "todayPlan", "KCD-13")
	AppendExtracted(rep, "todayPlan", "KCD-14")

	first := Flatten(rep)
	second := Flatten(rep)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical maps from repeated flatten, got %v and %v", first, second)
	}
}

func TestIsAnswered(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected bool
	}{
		{"meaningful value", "KCD-12", true},
		{"none token", "none", true},
		{"russian none token", "нет", true},
		{"no problems phrase", "No problems at all", true},
		{"empty value", "", false},
		{"empty object", "{}", false},
		{"null literal", "null", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rep := New("s_test")
			UpsertFreeform(rep, "roadblocks", tc.value)
			if got := IsAnswered(rep, "roadblocks"); got != tc.expected {
				t.Errorf("IsAnswered with value %q: expected %v, got %v", tc.value, tc.expected, got)
			}
		})
	}
}

func TestIsAnswered_NoEntry(t *testing.T) {
	rep := New("s_test")
	if IsAnswered(rep, "roadblocks") {
		t.Error("expected unanswered for missing key")
	}
}

func TestIsAnswered_ExtractedCounts(t *testing.T) {
	rep := New("s_test")
	AppendExtracted(rep, "todayPlan", "KCD-13")
	if !IsAnswered(rep, "todayPlan") {
		t.Error("expected extracted entry to count as answered")
	}
}

func TestLastAgentQuestionID(t *testing.T) {
	rep := New("s_test")
	if got := LastAgentQuestionID(rep); got != nil {
		t.Errorf("expected nil for empty transcript, got %v", *got)
	}

	q1, q2 := 1, 2
	AppendConversation(rep, models.ConversationEntry{Author: models.AuthorAgent, Text: "q1", QuestionID: &q1})
	AppendConversation(rep, models.ConversationEntry{Author: models.AuthorClient, Text: "a1"})
	AppendConversation(rep, models.ConversationEntry{Author: models.AuthorAgent, Text: "q2", QuestionID: &q2})

	got := LastAgentQuestionID(rep)
	if got == nil || *got != 2 {
		t.Errorf("expected question id 2, got %v", got)
	}
}

func TestConversationPairs(t *testing.T) {
	rep := New("s_test")
	q1, q2 := 1, 2
	AppendConversation(rep, models.ConversationEntry{Author: models.AuthorAgent, Text: "What did you do yesterday?", QuestionID: &q1})
	AppendConversation(rep, models.ConversationEntry{Author: models.AuthorClient, Text: "KCD-12"})
	AppendConversation(rep, models.ConversationEntry{Author: models.AuthorAgent, Text: "What is the plan today?", QuestionID: &q2})

	pairs := ConversationPairs(rep)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Question != "What did you do yesterday?" || pairs[0].Answer != "KCD-12" {
		t.Errorf("unexpected first pair: %+v", pairs[0])
	}
	if pairs[1].Answer != "" {
		t.Errorf("expected unanswered last question, got answer %q", pairs[1].Answer)
	}
}

func TestClone_Independent(t *testing.T) {
	rep := New("s_test")
	UpsertFreeform(rep, "yesterdayWork", "KCD-12")
	AppendConversation(rep, models.ConversationEntry{Author: models.AuthorClient, Text: "KCD-12"})

	dup := Clone(rep)
	UpsertFreeform(dup, "yesterdayWork", "changed")
	AppendExtracted(dup, "todayPlan", "KCD-13")

	if len(rep.Data) != 1 {
		t.Errorf("expected original data untouched, got %d entries", len(rep.Data))
	}
	if rep.Data[0].Value != "KCD-12" {
		t.Errorf("expected original value preserved, got %q", rep.Data[0].Value)
	}
}
