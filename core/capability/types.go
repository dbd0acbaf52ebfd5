// Package capability is the read-only catalogue of what a device can do,
// indexed platform → router → radio. Radios expose ordered protocols,
// protocols expose channels, routers expose connectors and ethernet ports.
package capability

import (
	"slices"
)

// Channel is one wireless channel.
type Channel struct {
	Number    int `json:"number" yaml:"number"`
	Frequency int `json:"frequency" yaml:"frequency"` // MHz
}

// ChannelFor returns the channel with its centre frequency filled in.
func ChannelFor(number int) Channel {
	return Channel{Number: number, Frequency: frequency(number)}
}

func frequency(n int) int {
	switch {
	case n == 14:
		return 2484
	case n >= 1 && n <= 13:
		return 2407 + 5*n
	case n >= 32:
		return 5000 + 5*n
	}
	return 0
}

// Protocol is a wireless protocol supported by a radio (e.g. "g", "n").
type Protocol struct {
	Code     string    `json:"code" yaml:"code"`
	Name     string    `json:"name" yaml:"name"`
	channels []Channel // ordered
}

// NewProtocol creates a protocol supporting the given channel numbers in
// order. Duplicate numbers are dropped.
func NewProtocol(code, name string, channels ...int) *Protocol {
	p := &Protocol{Code: code, Name: name}
	for _, n := range channels {
		if p.hasChannel(n) {
			continue
		}
		p.channels = append(p.channels, ChannelFor(n))
	}
	return p
}

// Channels returns the protocol's channels accepted by filter. A nil
// filter returns every channel.
func (p *Protocol) Channels(filter Filter) []Channel {
	result := make([]Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		if filter == nil || filter(p, ch) {
			result = append(result, ch)
		}
	}
	return result
}

func (p *Protocol) hasChannel(n int) bool {
	return slices.ContainsFunc(p.channels, func(ch Channel) bool { return ch.Number == n })
}

// Connector is an antenna connector of a radio.
type Connector struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"` // e.g. "rp-sma"
}

// Port is an ethernet port of a router.
type Port struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Radio is one wireless radio of a router.
type Radio struct {
	ID         string
	Index      int
	router     string
	protocols  []*Protocol
	connectors []Connector
}

// NewRadio creates a radio. Protocols keep the given order.
func NewRadio(id string, index int, protocols []*Protocol, connectors []Connector) *Radio {
	return &Radio{
		ID:         id,
		Index:      index,
		protocols:  protocols,
		connectors: connectors,
	}
}

// Protocols returns the supported protocols in order.
func (r *Radio) Protocols() []*Protocol {
	return append([]*Protocol(nil), r.protocols...)
}

// ProtocolCodes returns the codes of the supported protocols in order.
func (r *Radio) ProtocolCodes() []string {
	codes := make([]string, 0, len(r.protocols))
	for _, p := range r.protocols {
		codes = append(codes, p.Code)
	}
	return codes
}

// Protocol looks up a supported protocol. Unknown codes yield a
// *LookupError matching ErrMissingCapability.
func (r *Radio) Protocol(code string) (*Protocol, error) {
	for _, p := range r.protocols {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, &LookupError{Kind: "protocol", Path: r.path(), Value: code}
}

// SelectProtocol validates a protocol selection for this radio.
func (r *Radio) SelectProtocol(code string) (*Selection, error) {
	p, err := r.Protocol(code)
	if err != nil {
		return nil, err
	}
	return &Selection{Radio: r, Protocol: p}, nil
}

// Connectors returns the antenna connectors of the radio.
func (r *Radio) Connectors() []Connector {
	return append([]Connector(nil), r.connectors...)
}

// Connector looks up an antenna connector.
func (r *Radio) Connector(id string) (Connector, error) {
	for _, c := range r.connectors {
		if c.ID == id {
			return c, nil
		}
	}
	return Connector{}, &LookupError{Kind: "connector", Path: r.path(), Value: id}
}

func (r *Radio) path() string {
	if r.router == "" {
		return r.ID
	}
	return r.router + "/" + r.ID
}

// Selection is a protocol selected on a radio.
type Selection struct {
	Radio    *Radio
	Protocol *Protocol
}

// Channels returns the channels valid for the selection under filter.
func (s *Selection) Channels(filter Filter) []Channel {
	return s.Protocol.Channels(filter)
}

// SelectChannel validates a channel for the selected protocol. A channel
// outside the protocol's (filtered) set yields a *SelectionError.
func (s *Selection) SelectChannel(number int, filter Filter) (Channel, error) {
	if !s.Protocol.hasChannel(number) {
		return Channel{}, &SelectionError{
			Radio:    s.Radio.path(),
			Protocol: s.Protocol.Code,
			Channel:  number,
			Reason:   "not supported by protocol",
		}
	}
	ch := ChannelFor(number)
	if filter != nil && !filter(s.Protocol, ch) {
		return Channel{}, &SelectionError{
			Radio:    s.Radio.path(),
			Protocol: s.Protocol.Code,
			Channel:  number,
			Reason:   "not allowed by regulatory domain",
		}
	}
	return ch, nil
}

// Router describes one router model of a platform.
type Router struct {
	ID           string
	Name         string
	Architecture string
	platform     string
	radios       []*Radio
	ports        []Port
}

// NewRouter creates a router description.
func NewRouter(id, name, architecture string, radios []*Radio, ports []Port) *Router {
	r := &Router{
		ID:           id,
		Name:         name,
		Architecture: architecture,
		radios:       radios,
		ports:        ports,
	}
	for _, radio := range radios {
		radio.router = id
	}
	return r
}

// Platform returns the name of the platform the router belongs to.
func (r *Router) Platform() string {
	return r.platform
}

// Radios returns the radios of the router in order.
func (r *Router) Radios() []*Radio {
	return append([]*Radio(nil), r.radios...)
}

// Radio looks up a radio.
func (r *Router) Radio(id string) (*Radio, error) {
	for _, radio := range r.radios {
		if radio.ID == id {
			return radio, nil
		}
	}
	return nil, &LookupError{Kind: "radio", Path: r.platform + "/" + r.ID, Value: id}
}

// Ports returns the ethernet ports of the router.
func (r *Router) Ports() []Port {
	return append([]Port(nil), r.ports...)
}

// Port looks up an ethernet port.
func (r *Router) Port(id string) (Port, error) {
	for _, p := range r.ports {
		if p.ID == id {
			return p, nil
		}
	}
	return Port{}, &LookupError{Kind: "port", Path: r.platform + "/" + r.ID, Value: id}
}

// Platform groups the routers of one firmware platform.
type Platform struct {
	Name    string
	routers map[string]*Router
	order   []string
}

// Router looks up a router of the platform.
func (p *Platform) Router(id string) (*Router, error) {
	r, ok := p.routers[id]
	if !ok {
		return nil, &LookupError{Kind: "router", Path: p.Name, Value: id}
	}
	return r, nil
}

// Routers returns the routers of the platform in registration order.
func (p *Platform) Routers() []*Router {
	result := make([]*Router, 0, len(p.order))
	for _, id := range p.order {
		result = append(result, p.routers[id])
	}
	return result
}
