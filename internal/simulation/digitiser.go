package simulation

import (
	"encoding/json"
	"fmt"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
)

// Interval is an inclusive integer range, used for manual channel layouts.
type Interval struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Values enumerates the interval in ascending order.
func (i Interval) Values() []int {
	if i.Max < i.Min {
		return nil
	}
	out := make([]int, 0, i.Max-i.Min+1)
	for v := i.Min; v <= i.Max; v++ {
		out = append(out, v)
	}
	return out
}

// Digitiser is one manually-configured digitiser: an id and the inclusive
// interval of channels it owns.
type Digitiser struct {
	ID       uint8    `json:"id"`
	Channels Interval `json:"channels"`
}

// EngineDigitiser is the resolved runtime form of a digitiser: its id and
// the positions of its channels within the generated channel list.
type EngineDigitiser struct {
	ID             uint8
	ChannelIndices []int
}

// DigitiserConfig describes the channel layout of the simulated instrument.
//
// JSON forms, externally tagged:
//
//	{ "auto-aggregated-frame": { "num-channels": {...} } }
//	{ "manual-aggregated-frame": { "channels": [0, 1, ...] } }
//	{ "auto-digitisers": { "num-digitisers": {...}, "num-channels-per-digitiser": {...} } }
//	{ "manual-digitisers": [ { "id": 0, "channels": { "min": 0, "max": 7 } }, ... ] }
type DigitiserConfig struct {
	autoAggregated   *autoAggregatedFrame
	manualAggregated *manualAggregatedFrame
	autoDigitisers   *autoDigitisers
	manualDigitisers []Digitiser
}

type autoAggregatedFrame struct {
	NumChannels distrib.IntExpr `json:"num-channels"`
}

type manualAggregatedFrame struct {
	Channels []uint32 `json:"channels"`
}

type autoDigitisers struct {
	NumDigitisers           distrib.IntExpr `json:"num-digitisers"`
	NumChannelsPerDigitiser distrib.IntExpr `json:"num-channels-per-digitiser"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *DigitiserConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		AutoAggregated   *autoAggregatedFrame   `json:"auto-aggregated-frame"`
		ManualAggregated *manualAggregatedFrame `json:"manual-aggregated-frame"`
		AutoDigitisers   *autoDigitisers        `json:"auto-digitisers"`
		ManualDigitisers []Digitiser            `json:"manual-digitisers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("digitiser config: %w", err)
	}
	switch {
	case raw.AutoAggregated != nil:
		*c = DigitiserConfig{autoAggregated: raw.AutoAggregated}
	case raw.ManualAggregated != nil:
		*c = DigitiserConfig{manualAggregated: raw.ManualAggregated}
	case raw.AutoDigitisers != nil:
		*c = DigitiserConfig{autoDigitisers: raw.AutoDigitisers}
	case raw.ManualDigitisers != nil:
		*c = DigitiserConfig{manualDigitisers: raw.ManualDigitisers}
	default:
		return fmt.Errorf("digitiser config: want one of auto-aggregated-frame, manual-aggregated-frame, auto-digitisers, manual-digitisers: %s", data)
	}
	return nil
}

// GenerateChannels expands the configuration into the flat, ordered list of
// channel numbers the simulation produces traces for.
func (c *DigitiserConfig) GenerateChannels() ([]uint32, error) {
	switch {
	case c.autoAggregated != nil:
		n, err := c.autoAggregated.NumChannels.Value(0)
		if err != nil {
			return nil, err
		}
		return ascendingChannels(n), nil
	case c.manualAggregated != nil:
		return append([]uint32(nil), c.manualAggregated.Channels...), nil
	case c.autoDigitisers != nil:
		d, err := c.autoDigitisers.NumDigitisers.Value(0)
		if err != nil {
			return nil, err
		}
		k, err := c.autoDigitisers.NumChannelsPerDigitiser.Value(0)
		if err != nil {
			return nil, err
		}
		return ascendingChannels(d * k), nil
	default:
		var channels []uint32
		for _, digitiser := range c.manualDigitisers {
			for _, ch := range digitiser.Channels.Values() {
				channels = append(channels, uint32(ch))
			}
		}
		return channels, nil
	}
}

// GenerateDigitisers expands the configuration into the runtime digitiser
// list. Channel indices partition the channel list contiguously, in the
// order GenerateChannels produces it. Aggregated-frame layouts have no
// digitisers.
func (c *DigitiserConfig) GenerateDigitisers() ([]EngineDigitiser, error) {
	switch {
	case c.autoDigitisers != nil:
		d, err := c.autoDigitisers.NumDigitisers.Value(0)
		if err != nil {
			return nil, err
		}
		k, err := c.autoDigitisers.NumChannelsPerDigitiser.Value(0)
		if err != nil {
			return nil, err
		}
		digitisers := make([]EngineDigitiser, 0, d)
		for i := 0; i < d; i++ {
			indices := make([]int, 0, k)
			for j := i * k; j < (i+1)*k; j++ {
				indices = append(indices, j)
			}
			digitisers = append(digitisers, EngineDigitiser{ID: uint8(i), ChannelIndices: indices})
		}
		return digitisers, nil
	case c.manualDigitisers != nil:
		digitisers := make([]EngineDigitiser, 0, len(c.manualDigitisers))
		offset := 0
		for _, digitiser := range c.manualDigitisers {
			span := len(digitiser.Channels.Values())
			indices := make([]int, 0, span)
			for j := offset; j < offset+span; j++ {
				indices = append(indices, j)
			}
			offset += span
			digitisers = append(digitisers, EngineDigitiser{ID: digitiser.ID, ChannelIndices: indices})
		}
		return digitisers, nil
	default:
		return nil, nil
	}
}

func ascendingChannels(n int) []uint32 {
	channels := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		channels = append(channels, uint32(i))
	}
	return channels
}
