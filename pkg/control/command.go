package control

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/harryosmar/log-visibility/pkg/models"
)

// Command operations
const (
	OpShowAll  = "show_all"
	OpHideAll  = "hide_all"
	OpAlsoShow = "also_show"
	OpAlsoHide = "also_hide"
	OpSet      = "set"
)

// ErrUnknownCommand is returned for an unsupported command operation
var ErrUnknownCommand = errors.New("unknown command")

// Controller is the policy surface commands are applied to
type Controller interface {
	ShowAll()
	HideAll()
	AlsoShow(ch models.Channel) bool
	AlsoHide(ch models.Channel) bool
	ApplyPolicy(p filter.Policy) error
}

// Command is a policy change received on the control channel
type Command struct {
	Op      string         `json:"op"`
	Channel string         `json:"channel,omitempty"`
	Policy  *filter.Policy `json:"policy,omitempty"`
}

// ParseCommand decodes and validates a command payload
func ParseCommand(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, fmt.Errorf("invalid command JSON: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks that the command carries what its operation needs
func (c Command) Validate() error {
	switch c.Op {
	case OpShowAll, OpHideAll:
		return nil
	case OpAlsoShow, OpAlsoHide:
		if c.Channel == "" {
			return fmt.Errorf("%s: channel is required", c.Op)
		}
		return nil
	case OpSet:
		if c.Policy == nil {
			return fmt.Errorf("%s: policy is required", c.Op)
		}
		return c.Policy.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Op)
	}
}

// Apply performs the command on ctrl
func (c Command) Apply(ctrl Controller) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c.Op {
	case OpShowAll:
		ctrl.ShowAll()
	case OpHideAll:
		ctrl.HideAll()
	case OpAlsoShow:
		ctrl.AlsoShow(c.Channel)
	case OpAlsoHide:
		ctrl.AlsoHide(c.Channel)
	case OpSet:
		return ctrl.ApplyPolicy(*c.Policy)
	}
	return nil
}
