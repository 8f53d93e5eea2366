package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/garnizi/payslip-analyzer-api/internal/models"
	"github.com/garnizi/payslip-analyzer-api/internal/services"
	"github.com/garnizi/payslip-analyzer-api/internal/upload"
	"github.com/garnizi/payslip-analyzer-api/internal/utils"
)

type SessionHandler struct {
	service     services.ConversationService
	logger      *utils.Logger
	maxFileSize int64
}

func NewSessionHandler(service services.ConversationService, logger *utils.Logger, maxFileSize int64) *SessionHandler {
	return &SessionHandler{
		service:     service,
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

// sessionView is the read-only projection of the session handed to the UI.
// The image travels as a data URI so the client can re-render the preview
// after a restore.
type sessionView struct {
	Screen        models.Screen         `json:"screen"`
	ImageDataURI  string                `json:"imageDataUri,omitempty"`
	Extraction    *models.PayslipRecord `json:"extraction,omitempty"`
	Transcript    []models.ChatMessage  `json:"transcript"`
	PendingAnswer bool                  `json:"pendingAnswer"`
	LastError     string                `json:"lastError,omitempty"`
}

func newSessionView(s *models.Session) *sessionView {
	view := &sessionView{
		Screen:        s.Screen,
		Extraction:    s.Extraction,
		Transcript:    s.Transcript,
		PendingAnswer: s.PendingAnswer,
		LastError:     s.LastError,
	}
	if len(s.ImageData) > 0 {
		view.ImageDataURI = upload.DataURI(s.ImageData, s.MediaType)
	}
	return view
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, newSessionView(h.service.Session()))
}

func (h *SessionHandler) SubmitImage(w http.ResponseWriter, r *http.Request) {
	// Reject oversized requests early by Content-Length
	if r.ContentLength > h.maxFileSize {
		h.respondError(w, utils.NewBadRequestError("File size exceeds the upload limit"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			h.respondError(w, utils.NewBadRequestError("File size exceeds the upload limit"))
			return
		}
		h.respondError(w, utils.NewBadRequestError("Invalid form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, utils.NewBadRequestError("No file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		h.respondError(w, utils.NewInternalError("Failed to read file"))
		return
	}
	if int64(len(data)) > h.maxFileSize {
		h.respondError(w, utils.NewBadRequestError("File size exceeds the upload limit"))
		return
	}
	if len(data) == 0 {
		h.respondError(w, utils.NewBadRequestError("Uploaded file is empty"))
		return
	}

	h.logger.Info("Payslip upload attempt",
		"filename", header.Filename,
		"reported_content_type", header.Header.Get("Content-Type"),
		"size", len(data))

	sess, err := h.service.SubmitImage(r.Context(), data, header.Header.Get("Content-Type"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	// Extraction continues asynchronously; the client polls GET /session.
	h.respondJSON(w, http.StatusAccepted, newSessionView(sess))
}

func (h *SessionHandler) ChooseOption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option string `json:"option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, utils.NewBadRequestError("Invalid request body"))
		return
	}

	option := models.ParseChatOption(req.Option)
	if option == models.OptionUnknown {
		h.respondError(w, utils.NewBadRequestError("Unknown option"))
		return
	}

	sess, err := h.service.ChooseOption(r.Context(), option)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, newSessionView(sess))
}

func (h *SessionHandler) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, utils.NewBadRequestError("Invalid request body"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.respondError(w, utils.NewBadRequestError("Question text is required"))
		return
	}

	sess, err := h.service.SubmitQuestion(r.Context(), req.Question)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, newSessionView(sess))
}

func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Reset(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, newSessionView(sess))
}

func (h *SessionHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *SessionHandler) respondError(w http.ResponseWriter, err error) {
	var status int
	var message string

	switch e := err.(type) {
	case *utils.AppError:
		status = e.StatusCode
		message = e.Message
	default:
		status = http.StatusInternalServerError
		message = "Internal server error"
	}

	h.logger.Error("Request error", "status", status, "error", message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
