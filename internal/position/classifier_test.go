package position_test

import (
	"PosTrack/internal/fill"
	"PosTrack/internal/position"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_RuleTable(t *testing.T) {
	cases := []struct {
		name string
		side fill.Side
		tag  fill.PositionTag
		held position.ExposureSide
		want position.Direction
	}{
		{"long channel buy", fill.SideBuy, fill.TagLong, position.SideLong, position.Increasing},
		{"long channel sell", fill.SideSell, fill.TagLong, position.SideLong, position.Decreasing},
		{"short channel sell", fill.SideSell, fill.TagShort, position.SideShort, position.Increasing},
		{"short channel buy", fill.SideBuy, fill.TagShort, position.SideShort, position.Decreasing},
		{"unified long buy", fill.SideBuy, fill.TagUnified, position.SideLong, position.Increasing},
		{"unified long sell", fill.SideSell, fill.TagUnified, position.SideLong, position.Decreasing},
		{"unified short sell", fill.SideSell, fill.TagUnified, position.SideShort, position.Increasing},
		{"unified short buy", fill.SideBuy, fill.TagUnified, position.SideShort, position.Decreasing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := mkFill(1, tc.side, tc.tag, "1", "100", t0)
			require.Equal(t, tc.want, position.Classify(f, tc.held))
		})
	}
}

func TestInferSide(t *testing.T) {
	buy := mkFill(1, fill.SideBuy, fill.TagUnified, "1", "100", t0)
	sell := mkFill(2, fill.SideSell, fill.TagUnified, "1", "100", t0)

	require.Equal(t, position.SideLong, position.InferSide(buy))
	require.Equal(t, position.SideShort, position.InferSide(sell))
}
