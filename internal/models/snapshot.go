package models

import "time"

// Snapshot is the durable copy of a completed session. It is written and
// read as one unit: the record here plus the image bytes stored under
// ImageKey in the image store. Only sessions with a finished extraction are
// ever snapshotted.
type Snapshot struct {
	Screen     Screen         `json:"screen"`
	ImageKey   string         `json:"image_key"`
	MediaType  string         `json:"media_type"`
	Extraction *PayslipRecord `json:"extraction"`
	Transcript []ChatMessage  `json:"transcript"`
	SavedAt    time.Time      `json:"saved_at"`
}

// Validate reports whether the snapshot is structurally complete enough to
// restore from. A snapshot that fails this check is discarded silently; a
// schema change simply invalidates old snapshots.
func (s *Snapshot) Validate() bool {
	if s == nil {
		return false
	}
	switch s.Screen {
	case ScreenDisplayingData, ScreenScriptedDone, ScreenFreeChat:
	default:
		return false
	}
	return s.ImageKey != "" && s.MediaType != "" && s.Extraction != nil && len(s.Transcript) > 0
}
