// Package report implements the report document operations.
//
// All writes to a report go through the mutators in this file so that the two
// ledger invariants hold: at most one freeform entry per key, and extracted
// entries accumulate without deduplication.
package report

import (
	"log/slog"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/google/uuid"
)

// New creates an empty report document for a session.
func New(sessionID string) *models.Report {
	return &models.Report{
		SessionID:    sessionID,
		Conversation: []models.ConversationEntry{},
		Data:         []models.DataEntry{},
	}
}

// AppendConversation appends one transcript entry, assigning an id if the
// caller did not provide one, and returns the id.
func AppendConversation(r *models.Report, entry models.ConversationEntry) string {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.Conversation = append(r.Conversation, entry)
	slog.Debug("report.AppendConversation: entry appended", "sessionID", r.SessionID, "author", entry.Author, "entryID", entry.ID)
	return entry.ID
}

// UpsertFreeform writes a freeform value for a key. A later freeform write for
// the same key replaces the earlier value in place, keeping the entry id, so
// the per-key uniqueness invariant holds for any sequence of writes.
func UpsertFreeform(r *models.Report, key, value string) string {
	for i := range r.Data {
		if r.Data[i].Key == key && r.Data[i].Type == models.DataTypeFreeform {
			r.Data[i].Value = value
			slog.Debug("report.UpsertFreeform: existing entry overwritten", "sessionID", r.SessionID, "key", key, "entryID", r.Data[i].ID)
			return r.Data[i].ID
		}
	}
	entry := models.DataEntry{
		ID:    uuid.NewString(),
		Key:   key,
		Value: value,
		Type:  models.DataTypeFreeform,
	}
	r.Data = append(r.Data, entry)
	slog.Debug("report.UpsertFreeform: new entry created", "sessionID", r.SessionID, "key", key, "entryID", entry.ID)
	return entry.ID
}

// AppendExtracted records one inference event for a key. Repeated extracted
// writes for the same key produce distinct entries; they are never collapsed.
func AppendExtracted(r *models.Report, key, value string) string {
	entry := models.DataEntry{
		ID:    uuid.NewString(),
		Key:   key,
		Value: value,
		Type:  models.DataTypeExtracted,
	}
	r.Data = append(r.Data, entry)
	slog.Debug("report.AppendExtracted: entry appended", "sessionID", r.SessionID, "key", key, "entryID", entry.ID)
	return entry.ID
}

// Flatten derives the single-value-per-key view of the data ledger. A freeform
// entry for a key always wins over any extracted entry for that key; among
// extracted entries the first-inserted one wins. Pure and deterministic given
// the same data ordering.
func Flatten(r *models.Report) map[string]string {
	flat := make(map[string]string, len(r.Data))
	freeform := make(map[string]bool)
	for _, entry := range r.Data {
		switch entry.Type {
		case models.DataTypeFreeform:
			flat[entry.Key] = entry.Value
			freeform[entry.Key] = true
		case models.DataTypeExtracted:
			if _, exists := flat[entry.Key]; !exists && !freeform[entry.Key] {
				flat[entry.Key] = entry.Value
			}
		}
	}
	return flat
}

// IsAnswered reports whether at least one data entry of either type exists for
// the key whose value is meaningful or none-equivalent.
func IsAnswered(r *models.Report, dataKey string) bool {
	for _, entry := range r.Data {
		if entry.Key != dataKey {
			continue
		}
		if IsUsableAnswer(entry.Value) {
			return true
		}
	}
	return false
}

// LastAgentQuestionID returns the question id of the most recent agent entry
// that was issued for a question, or nil if the transcript has none.
func LastAgentQuestionID(r *models.Report) *int {
	for i := len(r.Conversation) - 1; i >= 0; i-- {
		entry := r.Conversation[i]
		if entry.Author == models.AuthorAgent && entry.QuestionID != nil {
			return entry.QuestionID
		}
	}
	return nil
}

// QAPair is one agent question matched with the client answer that followed it.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ConversationPairs reconstructs the question/answer history by scanning the
// transcript and matching each agent entry with the next client entry.
func ConversationPairs(r *models.Report) []QAPair {
	var pairs []QAPair
	for i := 0; i < len(r.Conversation); i++ {
		if r.Conversation[i].Author != models.AuthorAgent {
			continue
		}
		pair := QAPair{Question: r.Conversation[i].Text}
		for j := i + 1; j < len(r.Conversation); j++ {
			if r.Conversation[j].Author == models.AuthorClient {
				pair.Answer = r.Conversation[j].Text
				break
			}
			if r.Conversation[j].Author == models.AuthorAgent {
				break
			}
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

// Clone returns a deep copy of the report. Engines mutate the copy and the
// caller persists it whole, so a failed turn never leaves a partial update.
func Clone(r *models.Report) *models.Report {
	dup := &models.Report{
		SessionID:    r.SessionID,
		Conversation: make([]models.ConversationEntry, len(r.Conversation)),
		Data:         make([]models.DataEntry, len(r.Data)),
		Version:      r.Version,
	}
	copy(dup.Conversation, r.Conversation)
	copy(dup.Data, r.Data)
	for i := range dup.Conversation {
		if ids := r.Conversation[i].DataIDs; ids != nil {
			dup.Conversation[i].DataIDs = append([]string(nil), ids...)
		}
		if qid := r.Conversation[i].QuestionID; qid != nil {
			v := *qid
			dup.Conversation[i].QuestionID = &v
		}
	}
	return dup
}
