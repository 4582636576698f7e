// Package models defines the report document and session state structures.
package models

import "time"

// Author identifies which side of the conversation produced an entry.
type Author string

const (
	// AuthorAgent marks entries produced by the survey agent.
	AuthorAgent Author = "agent"
	// AuthorClient marks entries produced by the responding client.
	AuthorClient Author = "client"
)

// DataEntryType distinguishes direct answers from inferred ones.
type DataEntryType string

const (
	// DataTypeFreeform is a record directly answering the question currently asked.
	// At most one freeform entry may exist per key.
	DataTypeFreeform DataEntryType = "freeform"
	// DataTypeExtracted is a record inferred from text answering a different
	// question than the one currently asked. Never deduplicated.
	DataTypeExtracted DataEntryType = "extracted"
)

// ConversationEntry is one message in a session's transcript, ordered by insertion.
type ConversationEntry struct {
	ID         string   `json:"id"`
	Author     Author   `json:"author"`
	Text       string   `json:"text"`
	QuestionID *int     `json:"question_id,omitempty"` // set on agent entries issued for a question
	DataIDs    []string `json:"data_ids,omitempty"`    // ids of data entries created from this message
}

// DataEntry is one collected value in a session's data ledger.
type DataEntry struct {
	ID    string        `json:"id"`
	Key   string        `json:"key"`
	Value string        `json:"value"`
	Type  DataEntryType `json:"type"`
}

// Report is the whole conversation and data ledger for one session. It is
// persisted as a single document and rewritten whole on each turn. Version
// increments on every save; writers must present the version they read.
type Report struct {
	SessionID    string              `json:"session_id"`
	Conversation []ConversationEntry `json:"conversation"`
	Data         []DataEntry         `json:"data"`
	Version      int64               `json:"version"`
}

// SessionState tracks a session's position in the survey. CurrentOrder is
// monotonically non-decreasing; Completed moves one way, false to true.
type SessionState struct {
	SessionID    string    `json:"session_id"`
	SurveyID     string    `json:"survey_id"`
	CurrentOrder int       `json:"current_order"`
	Completed    bool      `json:"completed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
