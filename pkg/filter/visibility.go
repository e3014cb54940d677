package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harryosmar/log-visibility/pkg/models"
)

// Mode is the default visibility of channels without an exception
type Mode int

const (
	// ShowAll shows every channel except the hidden exceptions
	ShowAll Mode = iota
	// HideAll hides every channel except the shown exceptions
	HideAll
)

// Names of the modes as used in configuration
const (
	ModeShowAll = "show_all"
	ModeHideAll = "hide_all"
)

// ErrUnknownMode is returned when a mode name cannot be parsed
var ErrUnknownMode = errors.New("unknown visibility mode")

func (m Mode) String() string {
	if m == HideAll {
		return ModeHideAll
	}
	return ModeShowAll
}

// ParseMode converts a configured mode name to a Mode. An empty name is ShowAll.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ModeShowAll:
		return ShowAll, nil
	case ModeHideAll:
		return HideAll, nil
	default:
		return ShowAll, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
}

type channelSet map[models.Channel]struct{}

// insert adds ch and reports whether it was already present
func (s channelSet) insert(ch models.Channel) bool {
	_, ok := s[ch]
	s[ch] = struct{}{}
	return ok
}

// remove deletes ch and reports whether it was present
func (s channelSet) remove(ch models.Channel) bool {
	_, ok := s[ch]
	delete(s, ch)
	return ok
}

func (s channelSet) containsAny(channels []models.Channel) bool {
	for _, ch := range channels {
		if _, ok := s[ch]; ok {
			return true
		}
	}
	return false
}

// policy is the default mode together with the exceptions that only have a
// meaning under that mode. Replacing the policy discards its exceptions.
type policy interface {
	mode() Mode
	exceptions() channelSet
	alsoShow(ch models.Channel) bool
	alsoHide(ch models.Channel) bool
	visible(channels []models.Channel) bool
}

type showAllPolicy struct {
	hidden channelSet
}

func (p *showAllPolicy) mode() Mode             { return ShowAll }
func (p *showAllPolicy) exceptions() channelSet { return p.hidden }

func (p *showAllPolicy) alsoShow(ch models.Channel) bool {
	return p.hidden.remove(ch)
}

func (p *showAllPolicy) alsoHide(ch models.Channel) bool {
	return p.hidden.insert(ch)
}

func (p *showAllPolicy) visible(channels []models.Channel) bool {
	return !p.hidden.containsAny(channels)
}

type hideAllPolicy struct {
	shown channelSet
}

func (p *hideAllPolicy) mode() Mode             { return HideAll }
func (p *hideAllPolicy) exceptions() channelSet { return p.shown }

func (p *hideAllPolicy) alsoShow(ch models.Channel) bool {
	return p.shown.insert(ch)
}

func (p *hideAllPolicy) alsoHide(ch models.Channel) bool {
	return !p.shown.remove(ch)
}

func (p *hideAllPolicy) visible(channels []models.Channel) bool {
	return p.shown.containsAny(channels)
}

// VisibilityFilter selects which channels are visible. It behaves as an OR
// filter: a record passes as soon as one of its channels is visible under
// HideAll, and is dropped as soon as one of its channels is hidden under
// ShowAll. Records with Force set always pass.
//
// VisibilityFilter does no locking of its own. Callers that share it between
// goroutines serialise access, as processor.Dispatcher does. The zero value
// shows every channel.
type VisibilityFilter struct {
	policy policy
}

// NewVisibilityFilter creates a filter that shows every channel
func NewVisibilityFilter() *VisibilityFilter {
	f := &VisibilityFilter{}
	f.ShowAll()
	return f
}

func (f *VisibilityFilter) current() policy {
	if f.policy == nil {
		f.ShowAll()
	}
	return f.policy
}

// ShowAll shows every channel and clears all exceptions
func (f *VisibilityFilter) ShowAll() {
	f.policy = &showAllPolicy{hidden: channelSet{}}
}

// HideAll hides every channel and clears all exceptions
func (f *VisibilityFilter) HideAll() {
	f.policy = &hideAllPolicy{shown: channelSet{}}
}

// AlsoShow makes ch visible without changing any other channel. Under HideAll
// it returns true if ch was already shown; under ShowAll it returns true if
// ch had been hidden and the exception was removed.
func (f *VisibilityFilter) AlsoShow(ch models.Channel) bool {
	return f.current().alsoShow(ch)
}

// AlsoHide hides ch without changing any other channel. It returns true if
// ch was already hidden.
func (f *VisibilityFilter) AlsoHide(ch models.Channel) bool {
	return f.current().alsoHide(ch)
}

// Mode returns the current default mode
func (f *VisibilityFilter) Mode() Mode {
	if f.policy == nil {
		return ShowAll
	}
	return f.policy.mode()
}

// Passes reports whether record would continue down the chain
func (f *VisibilityFilter) Passes(record models.Record) bool {
	if record.Force {
		return true
	}
	if f.policy == nil {
		return true
	}
	return f.policy.visible(record.Channels)
}

// Handle implements the Handler interface
func (f *VisibilityFilter) Handle(record models.Record) []models.Record {
	if !f.Passes(record) {
		return nil
	}
	return []models.Record{record}
}

// SignalStartTrack implements the Handler interface. Scopes are not filtered.
func (f *VisibilityFilter) SignalStartTrack(signal models.Record) []models.Record {
	return nil
}

// SignalEndTrack implements the Handler interface. Scopes are not filtered.
func (f *VisibilityFilter) SignalEndTrack(newDepth int, timeOfEnd time.Time) []models.Record {
	return nil
}

// Snapshot is a point-in-time view of a filter's policy
type Snapshot struct {
	Mode       Mode     `json:"-"`
	ModeName   string   `json:"mode"`
	Exceptions []string `json:"exceptions"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s[%s]", s.ModeName, strings.Join(s.Exceptions, ","))
}

// Snapshot returns the current mode and its exceptions as sorted strings
func (f *VisibilityFilter) Snapshot() Snapshot {
	mode := f.Mode()
	exceptions := []string{}
	if f.policy != nil {
		for ch := range f.policy.exceptions() {
			exceptions = append(exceptions, fmt.Sprint(ch))
		}
	}
	sort.Strings(exceptions)
	return Snapshot{
		Mode:       mode,
		ModeName:   mode.String(),
		Exceptions: exceptions,
	}
}
