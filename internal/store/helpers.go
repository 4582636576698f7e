package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// scanSurvey scans a Survey from a single sql.Row, decoding the questions
// column. Returns nil without error when the row does not exist.
func scanSurvey(row *sql.Row) (*models.Survey, error) {
	var survey models.Survey
	var name sql.NullString
	var questionsJSON string
	err := row.Scan(&survey.ID, &survey.ExternalID, &name, &questionsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan survey failed: %w", err)
	}
	survey.Name = name.String
	if err := json.Unmarshal([]byte(questionsJSON), &survey.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal survey questions failed: %w", err)
	}
	return &survey, nil
}
