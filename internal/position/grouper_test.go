package position_test

import (
	"PosTrack/internal/fill"
	"PosTrack/internal/position"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroupFills_SplitsHedgeChannels(t *testing.T) {
	fills := []fill.Fill{
		mkFill(1, fill.SideBuy, fill.TagLong, "1", "100", t0),
		mkFill(2, fill.SideSell, fill.TagShort, "1", "100", t0.Add(time.Second)),
		mkFill(3, fill.SideBuy, fill.TagLong, "1", "101", t0.Add(2*time.Second)),
	}

	channels := position.GroupFills(fills)
	require.Len(t, channels, 2)
	require.Len(t, channels[position.ChannelKey{Symbol: "BTCUSDT", Tag: fill.TagLong}], 2)
	require.Len(t, channels[position.ChannelKey{Symbol: "BTCUSDT", Tag: fill.TagShort}], 1)
}

func TestGroupFills_SortsByTimeThenOrderID(t *testing.T) {
	fills := []fill.Fill{
		mkFill(30, fill.SideBuy, fill.TagLong, "1", "100", t0.Add(time.Minute)),
		mkFill(10, fill.SideBuy, fill.TagLong, "1", "100", t0),
		mkFill(9, fill.SideBuy, fill.TagLong, "1", "100", t0.Add(time.Minute)),
	}

	channels := position.GroupFills(fills)
	got := channels[position.ChannelKey{Symbol: "BTCUSDT", Tag: fill.TagLong}]
	require.Len(t, got, 3)
	require.Equal(t, "10", got[0].OrderID)
	// id 9 sorts before id 30 numerically despite being lexically greater
	require.Equal(t, "9", got[1].OrderID)
	require.Equal(t, "30", got[2].OrderID)
}

// Hedge-mode channels on the same symbol never interact: a short leg does
// not decrease the long leg.
func TestGroupFills_HedgeChannelsFoldIndependently(t *testing.T) {
	fills := []fill.Fill{
		mkFill(1, fill.SideBuy, fill.TagLong, "5", "100", t0),
		mkFill(2, fill.SideSell, fill.TagShort, "3", "100", t0.Add(time.Second)),
	}

	channels := position.GroupFills(fills)
	for key, fs := range channels {
		res := position.FoldChannel("acct-1", key, fs, 5, fill.DefaultFeeRate)
		require.Len(t, res.Positions, 1)
		require.Equal(t, position.StatusOpen, res.Positions[0].Status)
	}
}
