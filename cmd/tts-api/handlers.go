package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/queue"
	"github.com/cmoscardi/textbook-tts/internal/storage"
)

// API holds the handlers' dependencies.
type API struct {
	logger       *observability.Logger
	docs         *storage.DocumentRepository
	parseJobs    *storage.ParseJobRepository
	convertJobs  *storage.ConvertJobRepository
	parseQueue   *queue.Queue
	convertQueue *queue.Queue
}

// Health reports service liveness.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerDocumentRequest struct {
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	StoragePath string    `json:"storage_path"`
}

// RegisterDocument records a document the calling system has already
// uploaded to object storage. The pipeline never writes the source object.
func (a *API) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == uuid.Nil || req.Name == "" || req.StoragePath == "" {
		writeError(w, http.StatusBadRequest, "owner_id, name and storage_path are required")
		return
	}

	doc := &storage.Document{
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		StoragePath: req.StoragePath,
	}
	if err := a.docs.Create(r.Context(), doc); err != nil {
		a.logger.Error().Err(err).Msg("Failed to register document")
		writeError(w, http.StatusInternalServerError, "failed to register document")
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

type jobResponse struct {
	JobID      uuid.UUID         `json:"job_id"`
	DocumentID uuid.UUID         `json:"document_id"`
	Status     storage.JobStatus `json:"status"`
	Progress   int               `json:"progress"`
	OutputPath *string           `json:"output_path,omitempty"`
	Error      *string           `json:"error,omitempty"`
}

// SubmitParse creates a parse job for a document and enqueues it.
func (a *API) SubmitParse(w http.ResponseWriter, r *http.Request) {
	documentID, ok := parseUUID(w, chi.URLParam(r, "documentID"))
	if !ok {
		return
	}

	if _, err := a.docs.GetByID(r.Context(), documentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		a.logger.Error().Err(err).Msg("Failed to load document")
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	job := &storage.ParseJob{DocumentID: documentID}
	if err := a.parseJobs.Create(r.Context(), job); err != nil {
		a.logger.Error().Err(err).Msg("Failed to create parse job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	err := a.parseQueue.Enqueue(r.Context(), queue.Message{
		JobID:      job.ID,
		DocumentID: documentID,
		Kind:       queue.KindParse,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to enqueue parse job")
		_ = a.parseJobs.MarkFailed(r.Context(), job.ID, "enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusAccepted, jobResponse{
		JobID:      job.ID,
		DocumentID: documentID,
		Status:     job.Status,
		Progress:   job.Progress,
	})
}

// SubmitConvert creates a convert job for a parsed document and enqueues
// it. Documents without parsed text are rejected up front; no job row is
// created for them.
func (a *API) SubmitConvert(w http.ResponseWriter, r *http.Request) {
	documentID, ok := parseUUID(w, chi.URLParam(r, "documentID"))
	if !ok {
		return
	}

	doc, err := a.docs.GetByID(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		a.logger.Error().Err(err).Msg("Failed to load document")
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	if doc.ParsedText == nil {
		writeError(w, http.StatusPreconditionFailed, "document has not been parsed")
		return
	}

	job := &storage.ConvertJob{DocumentID: documentID}
	if err := a.convertJobs.Create(r.Context(), job); err != nil {
		a.logger.Error().Err(err).Msg("Failed to create convert job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	err = a.convertQueue.Enqueue(r.Context(), queue.Message{
		JobID:      job.ID,
		DocumentID: documentID,
		Kind:       queue.KindConvert,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to enqueue convert job")
		_ = a.convertJobs.MarkFailed(r.Context(), job.ID, "enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusAccepted, jobResponse{
		JobID:      job.ID,
		DocumentID: documentID,
		Status:     job.Status,
		Progress:   job.Progress,
	})
}

// GetParseJob returns a parse job's status and progress.
func (a *API) GetParseJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"))
	if !ok {
		return
	}

	job, err := a.parseJobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		a.logger.Error().Err(err).Msg("Failed to load parse job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     job.Status,
		Progress:   job.Progress,
		Error:      job.ErrorMessage,
	})
}

// GetConvertJob returns a convert job's status, progress and, once
// completed, the artifact path.
func (a *API) GetConvertJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"))
	if !ok {
		return
	}

	job, err := a.convertJobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		a.logger.Error().Err(err).Msg("Failed to load convert job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     job.Status,
		Progress:   job.Progress,
		OutputPath: job.OutputPath,
		Error:      job.ErrorMessage,
	})
}

func parseUUID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
