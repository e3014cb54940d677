package filter

import (
	"errors"
	"fmt"
	"strings"
)

// Policy is the declarative form of a visibility policy, as read from
// configuration or received by the control surfaces
type Policy struct {
	// Default is show_all or hide_all; empty means show_all
	Default string   `json:"default" mapstructure:"default"`
	Show    []string `json:"show,omitempty" mapstructure:"show"`
	Hide    []string `json:"hide,omitempty" mapstructure:"hide"`
}

// ErrHideUnderHideAll is returned for a hide_all policy that lists hidden
// channels, which would have no effect
var ErrHideUnderHideAll = errors.New("hide: channels are already hidden under hide_all")

// Validate checks the default mode and channel names
func (p Policy) Validate() error {
	mode, err := ParseMode(p.Default)
	if err != nil {
		return err
	}
	if mode == HideAll && len(p.Hide) > 0 {
		return ErrHideUnderHideAll
	}
	for _, ch := range p.Show {
		if strings.TrimSpace(ch) == "" {
			return errors.New("show: empty channel name")
		}
	}
	for _, ch := range p.Hide {
		if strings.TrimSpace(ch) == "" {
			return errors.New("hide: empty channel name")
		}
	}
	return nil
}

// ApplyTo replaces the policy of f. The default mode is set first, then
// every Hide channel is hidden and every Show channel shown, so under
// show_all a channel listed in both ends up visible.
func (p Policy) ApplyTo(f *VisibilityFilter) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	mode, _ := ParseMode(p.Default)
	switch mode {
	case HideAll:
		f.HideAll()
	default:
		f.ShowAll()
	}
	for _, ch := range p.Hide {
		f.AlsoHide(ch)
	}
	for _, ch := range p.Show {
		f.AlsoShow(ch)
	}
	return nil
}

// PolicyFromSnapshot rebuilds a Policy that reproduces the snapshot when
// the exceptions are string channels
func PolicyFromSnapshot(s Snapshot) Policy {
	p := Policy{Default: s.Mode.String()}
	if s.Mode == HideAll {
		p.Show = append(p.Show, s.Exceptions...)
	} else {
		p.Hide = append(p.Hide, s.Exceptions...)
	}
	return p
}
