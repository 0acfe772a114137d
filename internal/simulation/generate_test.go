package simulation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
)

// smallFixture is a fixture small enough to synthesise traces quickly:
// two channels, one deterministic flat pulse, no noise.
const smallFixture = `
{
    "voltage-transformation": {"scale": 2, "translate": 1},
    "time-bins": { "const": 50 },
    "sample-rate": { "const": 1000000000 },
    "digitiser-config": {
        "auto-digitisers": {
            "num-digitisers": { "const": 1 },
            "num-channels-per-digitiser": { "const": 2 }
        }
    },
    "pulses": [{
        "pulse-type": "flat",
        "start":  { "random-type": "constant-float", "value": { "const": 10 } },
        "width":  { "random-type": "constant-float", "value": { "const": 5 } },
        "height": { "random-type": "constant-float", "value": { "const": 100 } }
    }],
    "event-lists": [
        {
            "pulses": [ {"weight": 1, "pulse-index": 0} ],
            "noises": [],
            "num-pulses": { "random-type": "constant-int", "value": { "const": 1 } }
        }
    ],
    "schedule": []
}
`

func loadSmallFixture(t *testing.T) *Simulation {
	t.Helper()
	sim, err := Load(strings.NewReader(smallFixture))
	require.NoError(t, err)
	return sim
}

func TestGenerateEventLists(t *testing.T) {
	sim := loadSmallFixture(t)

	lists, err := sim.GenerateEventLists(0, 3, 5, 99)
	require.NoError(t, err)
	require.Len(t, lists, 5)
	for _, list := range lists {
		require.Len(t, list.Pulses, 1)
		assert.Equal(t, uint32(10), list.Pulses[0].Start())
		assert.Equal(t, uint32(15), list.Pulses[0].End())
	}
}

func TestGenerateEventListsRejectsBadIndex(t *testing.T) {
	sim := loadSmallFixture(t)
	_, err := sim.GenerateEventLists(2, 0, 1, 99)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestGenerateEventListsIsReproducible(t *testing.T) {
	sim := loadFixture(t)

	first, err := sim.GenerateEventLists(0, 7, 3, 1234)
	require.NoError(t, err)
	second, err := sim.GenerateEventLists(0, 7, 3, 1234)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, len(first[i].Pulses), len(second[i].Pulses))
		for j := range first[i].Pulses {
			assert.Equal(t, first[i].Pulses[j].Time(), second[i].Pulses[j].Time())
			assert.Equal(t, first[i].Pulses[j].Intensity(), second[i].Pulses[j].Intensity())
		}
	}
}

func TestGenerateTraces(t *testing.T) {
	sim := loadSmallFixture(t)

	lists, err := sim.GenerateEventLists(0, 0, 2, 99)
	require.NoError(t, err)
	traces, err := sim.GenerateTraces(lists, 0, 99)
	require.NoError(t, err)

	require.Len(t, traces, len(lists))
	for _, trace := range traces {
		require.Len(t, trace, 50)
		// Outside the pulse: translate only. Inside: 2*100 + 1.
		assert.Equal(t, uint16(1), trace[0])
		assert.Equal(t, uint16(201), trace[12])
		assert.Equal(t, uint16(1), trace[30])
	}
}

func TestGenerateTracesClampsPulseBeyondTrace(t *testing.T) {
	raw := strings.Replace(smallFixture, `"value": { "const": 10 }`, `"value": { "const": 45 }`, 1)
	sim, err := Load(strings.NewReader(raw))
	require.NoError(t, err)

	lists, err := sim.GenerateEventLists(0, 0, 1, 99)
	require.NoError(t, err)
	traces, err := sim.GenerateTraces(lists, 0, 99)
	require.NoError(t, err)
	require.Len(t, traces[0], 50)
	assert.Equal(t, uint16(201), traces[0][49])
}

func TestNoiseBoundsAndSmoothing(t *testing.T) {
	raw := `
    {
        "bounds": { "min": 10, "max": 20 },
        "attributes": { "noise-type": "uniform", "min": { "const": 4 }, "max": { "const": 4 } },
        "smoothing-window-length": { "const": 2 }
    }`
	var source NoiseSource
	require.NoError(t, json.Unmarshal([]byte(raw), &source))

	noise := NewNoise(&source)
	rng := distrib.NewRand(1, 0, 0)

	// Outside bounds the source contributes zero-valued samples to the buffer.
	v, err := noise.Noisify(rng, 100, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	// Inside bounds a degenerate uniform draw always adds 4; with a
	// window of two, the first in-bounds draw averages with the zero
	// sample already buffered.
	v, err = noise.Noisify(rng, 100, 15, 0)
	require.NoError(t, err)
	assert.Equal(t, 102.0, v)

	v, err = noise.Noisify(rng, 100, 16, 0)
	require.NoError(t, err)
	assert.Equal(t, 104.0, v)
}
