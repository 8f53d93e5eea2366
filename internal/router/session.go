package router

import (
	"net/http"

	"github.com/garnizi/payslip-analyzer-api/internal/handlers"
	"github.com/garnizi/payslip-analyzer-api/internal/middleware"
	"github.com/garnizi/payslip-analyzer-api/internal/services"
	"github.com/garnizi/payslip-analyzer-api/internal/utils"

	"github.com/gorilla/mux"
)

func NewRouter(convService services.ConversationService, logger *utils.Logger, maxFileSize int64) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	sessionHandler := handlers.NewSessionHandler(convService, logger, maxFileSize)

	// Routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Session endpoints: the UI's intents
	api.HandleFunc("/session", sessionHandler.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/image", sessionHandler.SubmitImage).Methods(http.MethodPost)
	api.HandleFunc("/session/option", sessionHandler.ChooseOption).Methods(http.MethodPost)
	api.HandleFunc("/session/question", sessionHandler.SubmitQuestion).Methods(http.MethodPost)
	api.HandleFunc("/session/reset", sessionHandler.Reset).Methods(http.MethodPost)

	return r
}
