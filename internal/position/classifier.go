package position

import "PosTrack/internal/fill"

// InferSide derives a channel's exposure side from a fill on a unified
// (BOTH) channel with no open position: the fill that opens a position
// must be increasing it, so a buy opens long and a sell opens short.
func InferSide(f fill.Fill) ExposureSide {
	if f.Side == fill.SideBuy {
		return SideLong
	}
	return SideShort
}

// Classify maps a fill to the direction it moves its channel's position.
//
// Hedge channels are fixed by their tag: on a LONG channel buys increase
// and sells decrease, on a SHORT channel the reverse. A unified channel is
// judged against the exposure side it currently holds (or would open).
func Classify(f fill.Fill, side ExposureSide) Direction {
	switch f.Tag {
	case fill.TagLong:
		if f.Side == fill.SideBuy {
			return Increasing
		}
		return Decreasing

	case fill.TagShort:
		if f.Side == fill.SideSell {
			return Increasing
		}
		return Decreasing

	default: // unified
		if side == SideLong && f.Side == fill.SideBuy {
			return Increasing
		}
		if side == SideShort && f.Side == fill.SideSell {
			return Increasing
		}
		return Decreasing
	}
}

// channelSide returns the exposure side a channel's tag dictates, or the
// inferred side for unified channels.
func channelSide(key ChannelKey, first fill.Fill) ExposureSide {
	switch key.Tag {
	case fill.TagLong:
		return SideLong
	case fill.TagShort:
		return SideShort
	default:
		return InferSide(first)
	}
}
