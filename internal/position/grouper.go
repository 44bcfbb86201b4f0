package position

import (
	"PosTrack/internal/fill"
	"sort"
)

// GroupFills partitions a symbol's fills into accumulation channels and
// sorts each channel by execution time, ties broken by ascending order id.
// The per-channel ordering is what makes folding deterministic across runs.
func GroupFills(fills []fill.Fill) map[ChannelKey][]fill.Fill {
	channels := make(map[ChannelKey][]fill.Fill)

	for _, f := range fills {
		key := ChannelKey{Symbol: f.Symbol, Tag: f.Tag}
		channels[key] = append(channels[key], f)
	}

	for _, fs := range channels {
		sort.SliceStable(fs, func(i, j int) bool {
			if !fs[i].FilledAt.Equal(fs[j].FilledAt) {
				return fs[i].FilledAt.Before(fs[j].FilledAt)
			}
			return orderIDLess(fs[i].OrderID, fs[j].OrderID)
		})
	}

	return channels
}

// orderIDLess compares exchange order ids numerically. Ids are decimal
// strings without leading zeros, so shorter means smaller.
func orderIDLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
