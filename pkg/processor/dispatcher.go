package processor

import (
	"sync"
	"time"

	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/harryosmar/log-visibility/pkg/models"
	"go.uber.org/zap"
)

// Observer is notified of visibility decisions and policy changes
type Observer interface {
	ObserveDecision(record models.Record, passed bool)
	ObservePolicy(snapshot filter.Snapshot)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(models.Record, bool) {}
func (nopObserver) ObservePolicy(filter.Snapshot)       {}

// Dispatcher serialises records, scope signals and policy changes through
// the visibility filter and the downstream handler chain
type Dispatcher struct {
	mu         sync.Mutex
	visibility *filter.VisibilityFilter
	handlers   []filter.Handler
	observer   Observer
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. Records passing the visibility filter
// are handed to handlers in order.
func NewDispatcher(
	logger *zap.Logger,
	visibility *filter.VisibilityFilter,
	observer Observer,
	handlers ...filter.Handler,
) *Dispatcher {
	if observer == nil {
		observer = nopObserver{}
	}
	if visibility == nil {
		visibility = filter.NewVisibilityFilter()
	}
	return &Dispatcher{
		visibility: visibility,
		handlers:   handlers,
		observer:   observer,
		logger:     logger,
	}
}

func (d *Dispatcher) stages() []filter.Handler {
	return append([]filter.Handler{d.visibility}, d.handlers...)
}

// run hands records to stages in order and returns what comes out of the last one
func run(stages []filter.Handler, records []models.Record) []models.Record {
	for _, h := range stages {
		if len(records) == 0 {
			return nil
		}
		var next []models.Record
		for _, r := range records {
			next = append(next, h.Handle(r)...)
		}
		records = next
	}
	return records
}

// Dispatch sends a record down the chain and returns the records that
// came out of the last handler
func (d *Dispatcher) Dispatch(record models.Record) []models.Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	passed := d.visibility.Handle(record)
	d.observer.ObserveDecision(record, len(passed) > 0)
	if len(passed) == 0 {
		d.logger.Debug("Record filtered out", zap.Strings("channels", record.ChannelNames()))
		return nil
	}
	return run(d.handlers, passed)
}

// StartTrack forwards a scope start signal to every stage. Records emitted
// by a stage are handled by the stages after it.
func (d *Dispatcher) StartTrack(signal models.Record) []models.Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	stages := d.stages()
	var out []models.Record
	for i, h := range stages {
		out = append(out, run(stages[i+1:], h.SignalStartTrack(signal))...)
	}
	return out
}

// EndTrack forwards a scope end signal to every stage
func (d *Dispatcher) EndTrack(newDepth int, timeOfEnd time.Time) []models.Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	stages := d.stages()
	var out []models.Record
	for i, h := range stages {
		out = append(out, run(stages[i+1:], h.SignalEndTrack(newDepth, timeOfEnd))...)
	}
	return out
}

// policyChanged must be called with mu held
func (d *Dispatcher) policyChanged(op string, fields ...zap.Field) {
	snapshot := d.visibility.Snapshot()
	d.observer.ObservePolicy(snapshot)
	d.logger.Info("Visibility policy changed",
		append(fields, zap.String("op", op), zap.Stringer("policy", snapshot))...)
}

// ShowAll shows every channel
func (d *Dispatcher) ShowAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visibility.ShowAll()
	d.policyChanged("show_all")
}

// HideAll hides every channel
func (d *Dispatcher) HideAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visibility.HideAll()
	d.policyChanged("hide_all")
}

// AlsoShow makes ch visible, see filter.VisibilityFilter.AlsoShow
func (d *Dispatcher) AlsoShow(ch models.Channel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := d.visibility.AlsoShow(ch)
	d.policyChanged("also_show", zap.Any("channel", ch), zap.Bool("result", result))
	return result
}

// AlsoHide hides ch, see filter.VisibilityFilter.AlsoHide
func (d *Dispatcher) AlsoHide(ch models.Channel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := d.visibility.AlsoHide(ch)
	d.policyChanged("also_hide", zap.Any("channel", ch), zap.Bool("result", result))
	return result
}

// ApplyPolicy replaces the whole policy. An invalid policy leaves the
// current one in place.
func (d *Dispatcher) ApplyPolicy(p filter.Policy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := p.ApplyTo(d.visibility); err != nil {
		return err
	}
	d.policyChanged("apply")
	return nil
}

// Snapshot returns the current policy
func (d *Dispatcher) Snapshot() filter.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visibility.Snapshot()
}

// Passes reports whether record would pass the visibility filter, without
// dispatching it
func (d *Dispatcher) Passes(record models.Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visibility.Passes(record)
}
