package processor

import (
	"strings"

	"github.com/harryosmar/log-visibility/pkg/metrics"
	"github.com/harryosmar/log-visibility/pkg/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ServiceLabel is the container label whose value is added as a channel
const ServiceLabel = "com.docker.swarm.service.name"

// levelPaths are the JSON locations searched for a log level
var levelPaths = []string{
	"level",
	"severity",
	"severityText",
	"log\\.level",
	"log.level",
}

// LogProcessor turns container log lines into records and dispatches them
type LogProcessor struct {
	logger        *zap.Logger
	metrics       *metrics.Metrics
	dispatcher    *Dispatcher
	forceChannels map[string]struct{}
}

// NewLogProcessor creates a new log processor. Records tagged with any of
// forceChannels bypass the visibility policy.
func NewLogProcessor(
	logger *zap.Logger,
	metrics *metrics.Metrics,
	dispatcher *Dispatcher,
	forceChannels []string,
) *LogProcessor {
	force := make(map[string]struct{}, len(forceChannels))
	for _, ch := range forceChannels {
		force[ch] = struct{}{}
	}
	return &LogProcessor{
		logger:        logger,
		metrics:       metrics,
		dispatcher:    dispatcher,
		forceChannels: force,
	}
}

// ProcessLine processes a log line read from a container stream
func (p *LogProcessor) ProcessLine(raw string, stream string, meta models.ContainerMeta) {
	record, ok := p.NewRecord(raw, stream, meta)
	if !ok {
		p.logger.Debug("Skipping empty log line", zap.String("container", meta.Name))
		return
	}
	p.metrics.IncLinesProcessed()
	p.dispatcher.Dispatch(record)
}

// NewRecord builds the record for a raw docker log line. The line is
// expected to start with the timestamp docker adds when asked to.
func (p *LogProcessor) NewRecord(raw string, stream string, meta models.ContainerMeta) (models.Record, bool) {
	if len(strings.TrimSpace(raw)) == 0 {
		return models.Record{}, false
	}

	ts, line := "", raw
	if parts := strings.SplitN(raw, " ", 2); len(parts) == 2 && looksLikeTimestamp(parts[0]) {
		ts, line = parts[0], parts[1]
	}

	channels := make([]models.Channel, 0, 4)
	add := func(ch string) {
		if ch == "" {
			return
		}
		for _, c := range channels {
			if c == ch {
				return
			}
		}
		channels = append(channels, ch)
	}
	add(meta.Name)
	add(meta.Labels[ServiceLabel])
	add(stream)
	add(levelOf(line))

	record := models.Record{
		Channels:  channels,
		Content:   line,
		Source:    meta.Name,
		Timestamp: ts,
	}
	for _, ch := range channels {
		if _, ok := p.forceChannels[ch.(string)]; ok {
			record.Force = true
			break
		}
	}
	return record, true
}

// levelOf extracts the upper-cased level of a JSON log line
func levelOf(line string) string {
	if !gjson.Valid(line) {
		return ""
	}
	for _, path := range levelPaths {
		if v := gjson.Get(line, path); v.Exists() && v.Type == gjson.String {
			return strings.ToUpper(v.String())
		}
	}
	return ""
}

// looksLikeTimestamp is a cheap check for docker's RFC3339Nano prefix
func looksLikeTimestamp(s string) bool {
	return len(s) >= 20 && s[4] == '-' && s[7] == '-' && s[10] == 'T'
}
