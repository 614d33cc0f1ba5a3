package classify

import "time"

// temperatureTrend derives the rate of change of the mean zone
// temperature in degrees C per minute. It returns nil when no trend can
// be derived: no predecessor, a predecessor older than the look-back
// window, or a non-positive time delta. Unknown is distinct from zero;
// zero means measured-stable.
func temperatureTrend(current Sample, prev *Sample, lookback time.Duration) *float64 {
	if prev == nil {
		return nil
	}
	dt := current.Timestamp.Sub(prev.Timestamp)
	if dt <= 0 {
		return nil
	}
	if lookback > 0 && dt > lookback {
		return nil
	}
	perMin := (current.MeanTemperature() - prev.MeanTemperature()) / dt.Minutes()
	return &perMin
}
