package simulation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureJSON mirrors the shape of the production configuration: three
// pulse shapes, one event list with two noise sources, a 32x8 digitiser
// layout and a hundred-frame loop.
const fixtureJSON = `
{
    "voltage-transformation": {"scale": 1, "translate": 0 },
    "time-bins": { "const": 30000 },
    "sample-rate": { "const": 1000000000 },
    "digitiser-config": {
        "auto-digitisers": {
            "num-digitisers": { "const": 32 },
            "num-channels-per-digitiser": { "const": 8 }
        }
    },
    "pulses": [{
                    "pulse-type": "back-to-back-exp",
                    "spread":      { "random-type": "constant-float", "value": { "const": 5.5 } },
                    "rising":      { "random-type": "constant-float", "value": { "const": 3.5 } },
                    "falling":     { "random-type": "constant-float", "value": { "const": 2.4 } },
                    "peak_time":   { "random-type": "exponential", "lifetime": { "const": 2200 } },
                    "peak_height": { "random-type": "uniform-float", "min": { "const": 250 }, "max": { "const": 1100 } }
                },
                {
                    "pulse-type": "flat",
                    "start":  { "random-type": "exponential", "lifetime": { "const": 2200 } },
                    "width":  { "random-type": "uniform-float", "min": { "const": 20 }, "max": { "const": 50 } },
                    "height": { "random-type": "uniform-float", "min": { "const": 30 }, "max": { "const": 70 } }
                },
                {
                    "pulse-type": "triangular",
                    "start":     { "random-type": "exponential", "lifetime": { "const": 2200 } },
                    "width":     { "random-type": "uniform-float", "min": { "const": 20 }, "max": { "const": 50 } },
                    "peak_time": { "random-type": "uniform-float", "min": { "const": 0.25 }, "max": { "const": 0.75 } },
                    "height":    { "random-type": "uniform-float", "min": { "const": 30 }, "max": { "const": 70 } }
                }],
    "event-lists": [
        {
            "pulses": [
                {"weight": 1, "pulse-index": 0},
                {"weight": 1, "pulse-index": 1},
                {"weight": 1, "pulse-index": 2}
            ],
            "noises": [
                {
                    "attributes": { "noise-type": "gaussian", "mean": { "const": 0 }, "sd": { "const": 20 } },
                    "smoothing-window-length": { "const": 10 },
                    "bounds": { "min": 0, "max": 30000 }
                },
                {
                    "attributes": { "noise-type": "gaussian", "mean": { "const": 0 }, "sd": { "num-func": { "scale": 50, "translate": 50 } } },
                    "smoothing-window-length": { "const": 4 },
                    "bounds": { "min": 0, "max": 30000 }
                }
            ],
            "num-pulses": { "random-type": "constant-int", "value": { "const": 500 } }
        }
    ],
    "schedule": [
        { "send-run-start": { "name": { "text": "MyRun" }, "filename": { "text": "RunFile" }, "instrument": { "text": "MuSR" } } },
        { "set-timestamp": "now" },
        { "wait-ms": 100 },
        { "frame-loop": {
                "start": { "const": 0 },
                "end": { "const": 99 },
                "schedule": [
                    { "set-timestamp": { "advance-by-ms": 5 } },
                    { "send-digitiser-trace": { "event-list-index": 0 } }
                ]
            }
        }
    ]
}
`

func loadFixture(t *testing.T) *Simulation {
	t.Helper()
	sim, err := Load(strings.NewReader(fixtureJSON))
	require.NoError(t, err)
	return sim
}

func TestLoadFixture(t *testing.T) {
	sim := loadFixture(t)

	assert.Len(t, sim.Pulses, 3)
	assert.Len(t, sim.EventLists, 1)
	assert.Equal(t, 1.0, sim.VoltageTransformation.Scale)
	assert.Equal(t, 0.0, sim.VoltageTransformation.Translate)

	bins, err := sim.TimeBins.Value(0)
	require.NoError(t, err)
	assert.Equal(t, 30000, bins)
}

func TestFixtureChannelPartition(t *testing.T) {
	sim := loadFixture(t)

	channels, err := sim.DigitiserConfig.GenerateChannels()
	require.NoError(t, err)
	assert.Len(t, channels, 256)

	digitisers, err := sim.DigitiserConfig.GenerateDigitisers()
	require.NoError(t, err)
	require.Len(t, digitisers, 32)

	// Channel indices must partition the channel list contiguously.
	next := 0
	for _, digitiser := range digitisers {
		require.Len(t, digitiser.ChannelIndices, 8)
		for _, idx := range digitiser.ChannelIndices {
			assert.Equal(t, next, idx)
			next++
		}
	}
	assert.Equal(t, 256, next)
}

func TestManualDigitisersFillChannelIndices(t *testing.T) {
	raw := `
    {
        "voltage-transformation": {"scale": 1, "translate": 0},
        "time-bins": { "const": 100 },
        "sample-rate": { "const": 1000000000 },
        "digitiser-config": { "manual-digitisers": [
            { "id": 4, "channels": { "min": 0, "max": 3 } },
            { "id": 9, "channels": { "min": 10, "max": 11 } }
        ]},
        "pulses": [],
        "event-lists": [],
        "schedule": []
    }`
	sim, err := Load(strings.NewReader(raw))
	require.NoError(t, err)

	channels, err := sim.DigitiserConfig.GenerateChannels()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2, 3, 10, 11}, channels)

	digitisers, err := sim.DigitiserConfig.GenerateDigitisers()
	require.NoError(t, err)
	require.Len(t, digitisers, 2)
	assert.Equal(t, uint8(4), digitisers[0].ID)
	assert.Equal(t, []int{0, 1, 2, 3}, digitisers[0].ChannelIndices)
	assert.Equal(t, uint8(9), digitisers[1].ID)
	assert.Equal(t, []int{4, 5}, digitisers[1].ChannelIndices)
}

func TestLoadRejectsBadPulseIndex(t *testing.T) {
	raw := strings.Replace(fixtureJSON, `{"weight": 1, "pulse-index": 2}`, `{"weight": 1, "pulse-index": 7}`, 1)
	_, err := Load(strings.NewReader(raw))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsBadEventListIndex(t *testing.T) {
	raw := strings.Replace(fixtureJSON, `"send-digitiser-trace": { "event-list-index": 0 }`,
		`"send-digitiser-trace": { "event-list-index": 3 }`, 1)
	_, err := Load(strings.NewReader(raw))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsZeroWeights(t *testing.T) {
	raw := strings.ReplaceAll(fixtureJSON, `"weight": 1`, `"weight": 0`)
	_, err := Load(strings.NewReader(raw))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsUnknownTopLevelField(t *testing.T) {
	raw := strings.Replace(fixtureJSON, `"voltage-transformation"`, `"voltage-transform"`, 1)
	_, err := Load(strings.NewReader(raw))
	assert.Error(t, err)
}
