package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exactly one token", "abcd", 1},
		{"five chars rounds up", "abcde", 2},
		{"eight chars", "abcdefgh", 2},
		{"long text", strings.Repeat("x", 24000), 6000},
		{"long text plus one", strings.Repeat("x", 24001), 6001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Estimate(tt.text))
		})
	}
}

func TestEstimateMonotonic(t *testing.T) {
	prev := 0
	for n := 0; n <= 64; n++ {
		est := Estimate(strings.Repeat("a", n))
		assert.GreaterOrEqual(t, est, prev, "estimate must not decrease with length")
		prev = est
	}
}

func TestChooseModeBoundary(t *testing.T) {
	assert.Equal(t, ModeOnDeviceThenCloud, ChooseMode(0, DefaultThreshold))
	assert.Equal(t, ModeOnDeviceThenCloud, ChooseMode(5999, DefaultThreshold))
	assert.Equal(t, ModeCloudOnly, ChooseMode(6000, DefaultThreshold))
	assert.Equal(t, ModeCloudOnly, ChooseMode(6001, DefaultThreshold))
}

func TestChooseModeDefaultsThreshold(t *testing.T) {
	assert.Equal(t, ModeOnDeviceThenCloud, ChooseMode(5999, 0))
	assert.Equal(t, ModeCloudOnly, ChooseMode(6000, 0))
}

func TestChooseModeDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, ChooseMode(4242, DefaultThreshold), ChooseMode(4242, DefaultThreshold))
	}
}
