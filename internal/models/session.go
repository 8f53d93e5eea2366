package models

// Screen identifies which application screen the conversation is on.
type Screen string

const (
	ScreenAwaitingUpload Screen = "awaiting_upload"
	ScreenAnalyzing      Screen = "analyzing"
	ScreenDisplayingData Screen = "displaying_data"
	ScreenScriptedDone   Screen = "scripted_done"
	ScreenFreeChat       Screen = "free_chat"
)

// Valid reports whether s is one of the defined screens.
func (s Screen) Valid() bool {
	switch s {
	case ScreenAwaitingUpload, ScreenAnalyzing, ScreenDisplayingData, ScreenScriptedDone, ScreenFreeChat:
		return true
	}
	return false
}

// Sender identifies who produced a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ChatOption is one of the closed set of scripted choices offered to the
// user. Options are an enum rather than raw strings so that unhandled
// options cannot slip through the state machine.
type ChatOption string

const (
	OptionYes     ChatOption = "yes"
	OptionNo      ChatOption = "no"
	OptionUnknown ChatOption = ""
)

// ParseChatOption maps option text from the client to a ChatOption.
// Unrecognized text maps to OptionUnknown.
func ParseChatOption(text string) ChatOption {
	switch text {
	case string(OptionYes):
		return OptionYes
	case string(OptionNo):
		return OptionNo
	}
	return OptionUnknown
}

// ChatMessage is one transcript entry. ID is a correlation identifier used
// to replace the transient "thinking" placeholder by identity instead of by
// text match.
type ChatMessage struct {
	ID      string   `json:"id"`
	Sender  Sender   `json:"sender"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// Session is the single source of truth for the conversation: the active
// screen, the uploaded payslip image, the extraction result, and the
// transcript. It is mutated only by the conversation service; everything
// handed outward is a deep copy.
type Session struct {
	Screen        Screen         `json:"screen"`
	ImageData     []byte         `json:"-"`
	MediaType     string         `json:"mediaType,omitempty"`
	Extraction    *PayslipRecord `json:"extraction,omitempty"`
	Transcript    []ChatMessage  `json:"transcript"`
	PendingAnswer bool           `json:"pendingAnswer"`
	LastError     string         `json:"lastError,omitempty"`

	// Generation increments on every reset and every new upload. Async
	// gateway completions carry the generation they started under and are
	// discarded when it no longer matches.
	Generation uint64 `json:"-"`
}

// NewSession returns a fresh session in the initial state.
func NewSession() *Session {
	return &Session{
		Screen:     ScreenAwaitingUpload,
		Transcript: []ChatMessage{},
	}
}

// Clone returns a deep copy safe to hand to the presentation layer.
func (s *Session) Clone() *Session {
	c := *s
	if s.ImageData != nil {
		c.ImageData = append([]byte(nil), s.ImageData...)
	}
	if s.Extraction != nil {
		e := *s.Extraction
		e.Payments = append([]LineItem(nil), s.Extraction.Payments...)
		e.Deductions = append([]LineItem(nil), s.Extraction.Deductions...)
		c.Extraction = &e
	}
	c.Transcript = make([]ChatMessage, len(s.Transcript))
	for i, m := range s.Transcript {
		m.Options = append([]string(nil), m.Options...)
		c.Transcript[i] = m
	}
	return &c
}
