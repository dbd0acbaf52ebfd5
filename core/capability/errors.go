package capability

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCapability is returned for unknown platforms, routers,
	// radios, protocols, connectors and ports, and for selections a radio
	// does not support.
	ErrMissingCapability = errors.New("missing capability")

	// ErrInvalidSelection marks a protocol or channel selection that the
	// selected radio or protocol rejects.
	ErrInvalidSelection = errors.New("invalid capability selection")
)

// LookupError describes a failed catalogue lookup.
type LookupError struct {
	Kind  string // "platform", "router", "radio", "protocol", "connector", "port"
	Path  string // parent path, e.g. "openwrt/fon-2200"
	Value string
}

func (e *LookupError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
	}
	return fmt.Sprintf("unknown %s %q on %s", e.Kind, e.Value, e.Path)
}

// Unwrap makes LookupError match ErrMissingCapability.
func (e *LookupError) Unwrap() error {
	return ErrMissingCapability
}

// SelectionError describes a protocol or channel the selected radio cannot
// use. It matches both ErrInvalidSelection and ErrMissingCapability.
type SelectionError struct {
	Radio    string
	Protocol string
	Channel  int
	Reason   string
}

func (e *SelectionError) Error() string {
	if e.Channel != 0 {
		return fmt.Sprintf("radio %s: channel %d is not valid for protocol %s: %s", e.Radio, e.Channel, e.Protocol, e.Reason)
	}
	return fmt.Sprintf("radio %s: protocol %s: %s", e.Radio, e.Protocol, e.Reason)
}

// Unwrap returns both selection sentinels.
func (e *SelectionError) Unwrap() []error {
	return []error{ErrInvalidSelection, ErrMissingCapability}
}
