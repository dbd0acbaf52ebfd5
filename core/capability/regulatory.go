package capability

import (
	"fmt"
	"strings"
)

// Filter decides whether a channel of a protocol may be offered.
type Filter func(p *Protocol, ch Channel) bool

// Channel plans shared by device descriptors.
var (
	ChannelsBG = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	ChannelsA  = []int{36, 40, 44, 48, 52, 56, 60, 64, 100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 149, 153, 157, 161, 165}
)

type channelRange struct{ lo, hi int }

var domains = map[string][]channelRange{
	"ETSI": {{1, 13}, {36, 64}, {100, 140}},
	"FCC":  {{1, 11}, {36, 64}, {100, 140}, {149, 165}},
	"JP":   {{1, 14}, {36, 64}, {100, 140}},
}

// Regulatory returns the filter for a regulatory domain. An empty domain
// returns a nil filter, which accepts every channel.
func Regulatory(domain string) (Filter, error) {
	if domain == "" {
		return nil, nil
	}
	ranges, ok := domains[strings.ToUpper(domain)]
	if !ok {
		return nil, fmt.Errorf("unknown regulatory domain %q", domain)
	}
	return func(_ *Protocol, ch Channel) bool {
		for _, r := range ranges {
			if ch.Number >= r.lo && ch.Number <= r.hi {
				return true
			}
		}
		return false
	}, nil
}
