package filter

import (
	"fmt"
	"time"

	"github.com/harryosmar/log-visibility/pkg/models"
	"go.uber.org/zap"
)

// Handler is one stage of the record handler chain
type Handler interface {
	// Handle processes a record and returns the records to forward to the
	// next stage. An empty result drops the record.
	Handle(record models.Record) []models.Record
	// SignalStartTrack is called when a nested scope opens
	SignalStartTrack(signal models.Record) []models.Record
	// SignalEndTrack is called when a scope closes, with the depth after closing
	SignalEndTrack(newDepth int, timeOfEnd time.Time) []models.Record
}

// Handler types understood by CreateHandler
const (
	TypeVisibility = "visibility"
	TypePassAll    = "passall"
)

// ErrUnsupportedHandlerType is returned when an unsupported handler type is requested
type ErrUnsupportedHandlerType string

func (e ErrUnsupportedHandlerType) Error() string {
	return fmt.Sprintf("unsupported handler type: %s", string(e))
}

// CreateHandler creates a handler based on the given type. The policy is
// only used by the visibility handler.
func CreateHandler(handlerType string, policy Policy, logger *zap.Logger) (Handler, error) {
	switch handlerType {
	case "", TypeVisibility:
		f := NewVisibilityFilter()
		if err := policy.ApplyTo(f); err != nil {
			return nil, err
		}
		logger.Info("Initialized visibility filter", zap.Stringer("policy", f.Snapshot()))
		return f, nil
	case TypePassAll:
		logger.Info("Initialized pass-all handler")
		return NewPassAllHandler(), nil
	default:
		return nil, ErrUnsupportedHandlerType(handlerType)
	}
}
