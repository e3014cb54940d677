package filter

import (
	"time"

	"github.com/harryosmar/log-visibility/pkg/models"
)

// PassAllHandler forwards every record unchanged
type PassAllHandler struct{}

// NewPassAllHandler creates a new PassAllHandler
func NewPassAllHandler() *PassAllHandler {
	return &PassAllHandler{}
}

// Handle implements the Handler interface
func (h *PassAllHandler) Handle(record models.Record) []models.Record {
	return []models.Record{record}
}

// SignalStartTrack implements the Handler interface
func (h *PassAllHandler) SignalStartTrack(signal models.Record) []models.Record {
	return nil
}

// SignalEndTrack implements the Handler interface
func (h *PassAllHandler) SignalEndTrack(newDepth int, timeOfEnd time.Time) []models.Record {
	return nil
}
