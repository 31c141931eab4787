package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/service"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/status"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/requestid"
)

type FittingHandler struct {
	srv *service.FittingService
}

func NewFittingHandler(srv *service.FittingService) *FittingHandler {
	return &FittingHandler{srv: srv}
}

func (h *FittingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/fittings", h.CreateFitting)
	r.Get("/api/v1/fittings/{id}", h.GetFittingStatus)
}

type createFittingRequest struct {
	RequesterID    string `json:"requester_id"`
	SourceImageRef string `json:"source_image_ref"`
	TargetItemID   string `json:"target_item_id"`
}

func (c *createFittingRequest) Bind(r *http.Request) error {
	return nil
}

type createFittingResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

type statusResponse struct {
	JobID         string     `json:"job_id"`
	Status        string     `json:"status"`
	Position      *int       `json:"position,omitempty"`
	EstimatedWait *string    `json:"estimated_wait,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	ResultRef     *string    `json:"result_ref,omitempty"`
	Error         *string    `json:"error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type errorResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *FittingHandler) CreateFitting(w http.ResponseWriter, r *http.Request) {
	req := &createFittingRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.srv.Enqueue(r.Context(), req.RequesterID, req.SourceImageRef, req.TargetItemID)
	if err != nil {
		switch err.(type) {
		case *service.ErrInvalidRequest:
			renderError(w, r, http.StatusBadRequest, err.Error())
		default:
			zap.S().Named("fitting_handler").Errorw("failed to enqueue fitting", "error", err)
			renderError(w, r, http.StatusInternalServerError, "failed to enqueue fitting request")
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, createFittingResponse{
		JobID:    job.ID.String(),
		Status:   job.Status,
		Priority: job.Priority,
	})
}

func (h *FittingHandler) GetFittingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	record, err := h.srv.GetStatus(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			zap.S().Named("fitting_handler").Errorw("failed to read status", "job_id", id, "error", err)
			renderError(w, r, http.StatusInternalServerError, "failed to read status")
		}
		return
	}

	render.JSON(w, r, toStatusResponse(record))
}

func toStatusResponse(record *status.Record) statusResponse {
	resp := statusResponse{
		JobID:     record.JobID.String(),
		Status:    record.Status,
		Position:  record.Position,
		StartedAt: record.StartedAt,
		ResultRef: record.ResultRef,
		Error:     record.Error,
		UpdatedAt: record.UpdatedAt,
	}
	if record.EstimatedWait != nil {
		wait := record.EstimatedWait.String()
		resp.EstimatedWait = &wait
	}
	return resp
}

func renderError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, errorResponse{Message: message, RequestID: requestid.FromRequest(r)})
}
