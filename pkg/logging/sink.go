package logging

import (
	"time"

	"github.com/harryosmar/log-visibility/pkg/models"
	"go.uber.org/zap"
)

// Sink is the last stage of the handler chain. It writes every record it
// receives to a zap logger and forwards it unchanged.
type Sink struct {
	logger *zap.Logger
}

// NewSink creates a sink writing to logger
func NewSink(logger *zap.Logger) *Sink {
	return &Sink{logger: logger}
}

// Handle implements filter.Handler
func (s *Sink) Handle(record models.Record) []models.Record {
	fields := []zap.Field{
		zap.Strings("channels", record.ChannelNames()),
	}
	if record.Source != "" {
		fields = append(fields, zap.String("source", record.Source))
	}
	if record.Timestamp != "" {
		fields = append(fields, zap.String("timestamp", record.Timestamp))
	}
	if record.Force {
		fields = append(fields, zap.Bool("forced", true))
	}
	s.logger.Info(record.Content, fields...)
	return []models.Record{record}
}

// SignalStartTrack implements filter.Handler
func (s *Sink) SignalStartTrack(signal models.Record) []models.Record {
	s.logger.Debug("Track started", zap.String("track", signal.Content))
	return nil
}

// SignalEndTrack implements filter.Handler
func (s *Sink) SignalEndTrack(newDepth int, timeOfEnd time.Time) []models.Record {
	s.logger.Debug("Track ended", zap.Int("depth", newDepth), zap.Time("at", timeOfEnd))
	return nil
}
