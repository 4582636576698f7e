// Package api provides HTTP handlers for SurveyPipe endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/util"
)

// createSurveyHandler handles POST /surveys
func (s *Server) createSurveyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createSurveyHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.SurveyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSurveyHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createSurveyHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	existing, err := s.st.GetSurveyByExternalID(req.ExternalID)
	if err != nil {
		slog.Error("Server.createSurveyHandler check existing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to check existing survey"))
		return
	}
	if existing != nil {
		slog.Warn("Server.createSurveyHandler survey already exists", "externalID", req.ExternalID)
		writeJSONResponse(w, http.StatusConflict, models.Error("Survey with this external_id already exists"))
		return
	}

	survey := models.Survey{
		ID:         util.GenerateSurveyID(),
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Questions:  req.Questions,
	}
	if err := s.st.SaveSurvey(survey); err != nil {
		slog.Error("Server.createSurveyHandler save failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save survey"))
		return
	}

	slog.Info("Survey created successfully", "id", survey.ID, "externalID", survey.ExternalID, "questions", len(survey.Questions))
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Survey created successfully", survey))
}

// getSurveyHandler handles GET /surveys/{externalID}
func (s *Server) getSurveyHandler(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("externalID")
	slog.Debug("Server.getSurveyHandler invoked", "externalID", externalID)

	survey, err := s.st.GetSurveyByExternalID(externalID)
	if err != nil {
		slog.Error("Server.getSurveyHandler failed", "error", err, "externalID", externalID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get survey"))
		return
	}
	if survey == nil {
		slog.Debug("Server.getSurveyHandler not found", "externalID", externalID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Survey not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(survey))
}

// initSessionHandler handles POST /s/{externalID}/init
func (s *Server) initSessionHandler(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("externalID")
	slog.Debug("Server.initSessionHandler invoked", "externalID", externalID)

	result, err := s.orchestrator.StartSession(r.Context(), externalID)
	if err != nil {
		s.writeTurnError(w, "Server.initSessionHandler", err)
		return
	}

	slog.Info("Server.initSessionHandler session started", "sessionID", result.SessionID, "completed", result.Completed)
	writeJSONResponse(w, http.StatusCreated, models.Success(result))
}

// respondHandler handles POST /s/{externalID}/respond
func (s *Server) respondHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	externalID := r.PathValue("externalID")
	slog.Debug("Server.respondHandler invoked", "externalID", externalID)

	var req models.SessionRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.respondHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.respondHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.orchestrator.HandleTurn(r.Context(), req.SessionID, req.AnswerText)
	if err != nil {
		s.writeTurnError(w, "Server.respondHandler", err)
		return
	}

	slog.Info("Server.respondHandler turn processed", "sessionID", result.SessionID, "completed", result.Completed)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// getReportHandler handles GET /sessions/{sessionID}/report
func (s *Server) getReportHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	slog.Debug("Server.getReportHandler invoked", "sessionID", sessionID)

	rep, err := s.st.GetReport(sessionID)
	if err != nil {
		slog.Error("Server.getReportHandler failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get report"))
		return
	}
	if rep == nil {
		slog.Debug("Server.getReportHandler not found", "sessionID", sessionID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Report not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rep))
}

// healthHandler provides a health check endpoint for monitoring
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}

// writeTurnError maps orchestrator errors to HTTP responses.
func (s *Server) writeTurnError(w http.ResponseWriter, handler string, err error) {
	switch {
	case errors.Is(err, models.ErrSurveyNotFound):
		slog.Warn(handler+": survey not found", "error", err)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Survey not found"))
	case errors.Is(err, models.ErrSessionNotFound):
		slog.Warn(handler+": session not found", "error", err)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
	case errors.Is(err, models.ErrVersionConflict):
		slog.Warn(handler+": concurrent write detected", "error", err)
		writeJSONResponse(w, http.StatusConflict, models.Error("Concurrent update detected, retry the request"))
	case errors.Is(err, models.ErrCollaboratorUnavailable):
		slog.Error(handler+": language collaborator unavailable", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Language service unavailable, retry the request"))
	default:
		slog.Error(handler+": turn failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process request"))
	}
}
