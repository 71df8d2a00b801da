package sync

import (
	"fmt"

	"example.com/timesync/base/timebase"
)

// Apply applies u to clk. A step resets the frequency correction. Errors wrap
// timebase.ErrPermission or timebase.ErrRejected where the clock reported one
// of them.
func Apply(clk timebase.LocalClock, u StateUpdate) error {
	if u.Action == Step {
		if err := clk.Step(u.Offset); err != nil {
			return fmt.Errorf("failed to step clock by %v: %w", u.Offset, err)
		}
	}
	if err := clk.AdjustFrequency(u.FrequencyPPM); err != nil {
		return fmt.Errorf("failed to adjust clock frequency to %.3f ppm: %w",
			u.FrequencyPPM, err)
	}
	return nil
}
