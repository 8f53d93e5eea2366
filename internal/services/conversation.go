package services

import (
	"context"
	"strings"
	"sync"

	"github.com/garnizi/payslip-analyzer-api/internal/analyzer"
	"github.com/garnizi/payslip-analyzer-api/internal/models"
	"github.com/garnizi/payslip-analyzer-api/internal/repository"
	"github.com/garnizi/payslip-analyzer-api/internal/storage"
	"github.com/garnizi/payslip-analyzer-api/internal/upload"
	"github.com/garnizi/payslip-analyzer-api/internal/utils"
)

// Fixed conversation texts. The bot persona is "Garnizi", carried over from
// the product this service backs.
const (
	GreetingMessage       = "Hi, I'm Garnizi. Do you have any questions about this payslip?"
	FreeChatInviteMessage = "Sure, ask me anything you'd like to know about the payslip."
	ClosingMessage        = "Alright, have a good day!"
	ThinkingMessage       = "Garnizi is thinking..."
	AnswerFailureMessage  = "Sorry, I had trouble processing that question. Could you try again?"
	ExtractionFailureText = "Sorry, there was a problem analyzing the payslip. Please try again with a clearer image."
	UploadFailureText     = "The uploaded file could not be read. Please upload an image or PDF of a payslip."
)

// ConversationService is the state machine driving the session: which screen
// is active, which user intents are valid, and how gateway completions feed
// back into state. It is the only component that mutates the Session; every
// Session leaving this package is a deep copy.
type ConversationService interface {
	// Session returns a copy of the current session.
	Session() *models.Session

	// Restore rehydrates the session from a persisted snapshot, if a valid
	// one exists. Corrupt or incomplete snapshots are discarded silently.
	Restore(ctx context.Context)

	// SubmitImage validates the upload and starts the two-pass extraction.
	// The call returns immediately with the session in the analyzing screen;
	// the extraction completes asynchronously.
	SubmitImage(ctx context.Context, data []byte, declaredType string) (*models.Session, error)

	// ChooseOption handles the scripted yes/no choice. Anything outside the
	// displaying-data screen, or an unknown option, is a no-op.
	ChooseOption(ctx context.Context, option models.ChatOption) (*models.Session, error)

	// SubmitQuestion starts a free-text question. At most one question is in
	// flight at a time; submissions while an answer is pending are no-ops.
	SubmitQuestion(ctx context.Context, question string) (*models.Session, error)

	// Reset discards the session and its snapshot and returns to the
	// initial state. In-flight gateway completions from before the reset
	// are discarded when they arrive.
	Reset(ctx context.Context) (*models.Session, error)
}

type conversationService struct {
	mu       sync.Mutex
	session  *models.Session
	repo     repository.SnapshotRepository
	storage  storage.Storage
	analyzer analyzer.Analyzer
	logger   *utils.Logger

	// imageKey is the storage key of the persisted image payload; empty
	// until the first snapshot of the current session is taken.
	imageKey       string
	imagePersisted bool
}

func NewConversationService(repo repository.SnapshotRepository, store storage.Storage, llm analyzer.Analyzer, logger *utils.Logger) ConversationService {
	return &conversationService{
		session:  models.NewSession(),
		repo:     repo,
		storage:  store,
		analyzer: llm,
		logger:   logger,
	}
}

func (s *conversationService) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

func (s *conversationService) Restore(ctx context.Context) {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Warn("Discarding unreadable session snapshot", "error", err)
		s.discardSnapshot(ctx, snap)
		return
	}
	if snap == nil {
		return
	}
	if !snap.Validate() {
		s.logger.Warn("Discarding structurally invalid session snapshot")
		s.discardSnapshot(ctx, snap)
		return
	}

	image, err := s.storage.Download(ctx, snap.ImageKey)
	if err != nil || len(image) == 0 {
		s.logger.Warn("Discarding snapshot with missing image payload", "image_key", snap.ImageKey, "error", err)
		s.discardSnapshot(ctx, snap)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &models.Session{
		Screen:     snap.Screen,
		ImageData:  image,
		MediaType:  snap.MediaType,
		Extraction: snap.Extraction,
		Transcript: snap.Transcript,
	}
	s.imageKey = snap.ImageKey
	s.imagePersisted = true

	s.logger.Info("Session restored from snapshot", "screen", snap.Screen, "messages", len(snap.Transcript))
}

func (s *conversationService) SubmitImage(ctx context.Context, data []byte, declaredType string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Screen != models.ScreenAwaitingUpload {
		return s.session.Clone(), utils.NewConflictError("A session is already in progress. Reset it to upload a new payslip.")
	}

	mediaType, err := upload.Validate(data, declaredType)
	if err != nil {
		s.logger.Warn("Rejected payslip upload", "error", err, "declared_type", declaredType)
		s.session.LastError = UploadFailureText
		return s.session.Clone(), utils.NewBadRequestError(UploadFailureText)
	}

	s.session.LastError = ""
	s.session.ImageData = append([]byte(nil), data...)
	s.session.MediaType = mediaType
	s.session.Screen = models.ScreenAnalyzing
	s.session.Generation++

	generation := s.session.Generation
	image := append([]byte(nil), data...)

	s.logger.Info("Payslip accepted, starting extraction", "media_type", mediaType, "size", len(data))

	go s.runExtraction(generation, image, mediaType)

	return s.session.Clone(), nil
}

// runExtraction performs the two-pass extraction off the request goroutine
// and folds the completion back into the session, unless the session has
// been reset in the meantime.
func (s *conversationService) runExtraction(generation uint64, image []byte, mediaType string) {
	ctx := context.Background()
	record, err := s.analyzer.ExtractPayslip(ctx, image, mediaType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Generation != generation {
		s.logger.Info("Discarding stale extraction completion", "generation", generation)
		return
	}

	if err != nil {
		s.session.Screen = models.ScreenAwaitingUpload
		s.session.ImageData = nil
		s.session.MediaType = ""
		s.session.Extraction = nil
		s.session.LastError = ExtractionFailureText
		return
	}

	s.session.Extraction = record
	s.session.Screen = models.ScreenDisplayingData
	s.session.Transcript = append(s.session.Transcript, models.ChatMessage{
		ID:      utils.GenerateID(),
		Sender:  models.SenderBot,
		Text:    GreetingMessage,
		Options: []string{string(models.OptionYes), string(models.OptionNo)},
	})

	s.persistLocked(ctx)
}

func (s *conversationService) ChooseOption(ctx context.Context, option models.ChatOption) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The options set is a closed pair offered only on the data screen;
	// everything else is not a defined transition.
	if s.session.Screen != models.ScreenDisplayingData {
		return s.session.Clone(), nil
	}

	switch option {
	case models.OptionYes:
		s.appendLocked(models.SenderUser, string(option), nil)
		s.appendLocked(models.SenderBot, FreeChatInviteMessage, nil)
		s.session.Screen = models.ScreenFreeChat
	case models.OptionNo:
		s.appendLocked(models.SenderUser, string(option), nil)
		s.appendLocked(models.SenderBot, ClosingMessage, nil)
		s.session.Screen = models.ScreenScriptedDone
	default:
		return s.session.Clone(), nil
	}

	s.persistLocked(ctx)
	return s.session.Clone(), nil
}

func (s *conversationService) SubmitQuestion(ctx context.Context, question string) (*models.Session, error) {
	question = strings.TrimSpace(question)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Screen != models.ScreenFreeChat || question == "" {
		return s.session.Clone(), nil
	}
	if s.session.PendingAnswer {
		// One question in flight at a time.
		return s.session.Clone(), utils.NewConflictError("An answer is already being prepared. Please wait for it.")
	}

	s.appendLocked(models.SenderUser, question, nil)

	placeholderID := utils.GenerateID()
	s.session.Transcript = append(s.session.Transcript, models.ChatMessage{
		ID:     placeholderID,
		Sender: models.SenderBot,
		Text:   ThinkingMessage,
	})
	s.session.PendingAnswer = true

	generation := s.session.Generation
	image := append([]byte(nil), s.session.ImageData...)
	mediaType := s.session.MediaType

	go s.runAnswer(generation, placeholderID, image, mediaType, question)

	return s.session.Clone(), nil
}

func (s *conversationService) runAnswer(generation uint64, placeholderID string, image []byte, mediaType, question string) {
	ctx := context.Background()
	answer, err := s.analyzer.AnswerQuestion(ctx, image, mediaType, question)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Generation != generation {
		s.logger.Info("Discarding stale answer completion", "generation", generation)
		return
	}

	s.removePlaceholderLocked(placeholderID)

	text := answer
	if err != nil {
		text = AnswerFailureMessage
	}
	s.appendLocked(models.SenderBot, text, nil)
	s.session.PendingAnswer = false

	s.persistLocked(ctx)
}

func (s *conversationService) Reset(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	generation := s.session.Generation + 1
	s.session = models.NewSession()
	s.session.Generation = generation

	s.clearSnapshotLocked(ctx)

	s.logger.Info("Session reset")
	return s.session.Clone(), nil
}

func (s *conversationService) appendLocked(sender models.Sender, text string, options []string) {
	s.session.Transcript = append(s.session.Transcript, models.ChatMessage{
		ID:      utils.GenerateID(),
		Sender:  sender,
		Text:    text,
		Options: options,
	})
}

func (s *conversationService) removePlaceholderLocked(id string) {
	transcript := s.session.Transcript[:0]
	for _, m := range s.session.Transcript {
		if m.ID != id {
			transcript = append(transcript, m)
		}
	}
	s.session.Transcript = transcript
}

// persistLocked snapshots the session, best-effort. In-flight state is never
// persisted: nothing is written while analyzing, before an extraction
// exists, or while an answer is pending, so a restored transcript can never
// contain the thinking placeholder.
func (s *conversationService) persistLocked(ctx context.Context) {
	if s.session.Screen == models.ScreenAnalyzing || s.session.Extraction == nil || s.session.PendingAnswer {
		return
	}

	if !s.imagePersisted {
		s.imageKey = utils.GenerateID()
		if err := s.storage.Upload(ctx, s.imageKey, s.session.ImageData, s.session.MediaType); err != nil {
			s.logger.Warn("Failed to persist payslip image, skipping snapshot", "error", err)
			s.imageKey = ""
			return
		}
		s.imagePersisted = true
	}

	snap := &models.Snapshot{
		Screen:     s.session.Screen,
		ImageKey:   s.imageKey,
		MediaType:  s.session.MediaType,
		Extraction: s.session.Extraction,
		Transcript: s.session.Transcript,
	}
	if err := s.repo.Save(ctx, snap); err != nil {
		s.logger.Warn("Failed to persist session snapshot", "error", err)
	}
}

func (s *conversationService) clearSnapshotLocked(ctx context.Context) {
	if err := s.repo.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear session snapshot", "error", err)
	}
	if s.imageKey != "" {
		if err := s.storage.Delete(ctx, s.imageKey); err != nil {
			s.logger.Warn("Failed to delete persisted payslip image", "error", err, "image_key", s.imageKey)
		}
	}
	s.imageKey = ""
	s.imagePersisted = false
}

// discardSnapshot removes a snapshot that failed restore validation.
func (s *conversationService) discardSnapshot(ctx context.Context, snap *models.Snapshot) {
	if err := s.repo.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear invalid snapshot", "error", err)
	}
	if snap != nil && snap.ImageKey != "" {
		_ = s.storage.Delete(ctx, snap.ImageKey)
	}
}
