package detector

import "testing"

func TestFixedThresholdModeFindEvents(t *testing.T) {
	mode := FixedThresholdMode{
		Params: ThresholdParams{Threshold: 3, Duration: 2},
	}
	data := []uint16{0, 1, 2, 5, 6, 4, 2, 7, 8, 1}
	times, intensities := FindChannelEvents(data, 1, mode, Positive, 0)

	if len(times) != 2 || len(intensities) != 2 {
		t.Fatalf("got %d times and %d intensities, want 2 each", len(times), len(intensities))
	}
	if times[0] != 3 || intensities[0] != 6 {
		t.Errorf("first event: got (%d, %d), want (3, 6)", times[0], intensities[0])
	}
	if times[1] != 7 || intensities[1] != 8 {
		t.Errorf("second event: got (%d, %d), want (7, 8)", times[1], intensities[1])
	}
}

func TestFixedThresholdModeSampleTimeScalesTicks(t *testing.T) {
	mode := FixedThresholdMode{
		Params: ThresholdParams{Threshold: 3, Duration: 2},
	}
	data := []uint16{0, 1, 2, 5, 6, 4, 2, 7, 8, 1}
	times, _ := FindChannelEvents(data, 2, mode, Positive, 0)
	if len(times) != 2 || times[0] != 6 || times[1] != 14 {
		t.Fatalf("got %v, want ticks 6 and 14", times)
	}
}

func TestDifferentialModePeakHeightBasis(t *testing.T) {
	data := []uint16{4, 3, 2, 5, 8, 12, 2, 1, 5, 7, 2, 6, 5, 8, 8, 11, 0}
	params := DifferentialParams{BeginThreshold: 2.5, EndThreshold: 0, BeginDuration: 1}

	trace := DifferentialMode{Params: params, Mode: MaxValue, Basis: TraceBaseline}
	_, intensities := trace.FindEvents(data, 1, 1, 0)
	if len(intensities) != 3 {
		t.Fatalf("got %d events, want 3", len(intensities))
	}
	if intensities[0] != 12 {
		t.Errorf("trace-baseline intensity: got %d, want 12", intensities[0])
	}

	pulse := DifferentialMode{Params: params, Mode: MaxValue, Basis: PulseBaseline}
	_, intensities = pulse.FindEvents(data, 1, 1, 0)
	if intensities[0] != 10 {
		t.Errorf("pulse-baseline intensity: got %d, want 10", intensities[0])
	}
}

func TestNegativeHeightSaturatesToZero(t *testing.T) {
	if got := intensityOf(-5); got != 0 {
		t.Errorf("intensityOf(-5): got %d, want 0", got)
	}
	if got := intensityOf(70000); got != 65535 {
		t.Errorf("intensityOf(70000): got %d, want 65535", got)
	}
	if got := timeTick(-1); got != 0 {
		t.Errorf("timeTick(-1): got %d, want 0", got)
	}
}
