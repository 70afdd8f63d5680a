package ta

// EffectiveWindow picks the lookback actually used for an indicator: the
// requested period shrunk to the available history. ok is false when even the
// minimum viable window does not fit, in which case the indicator is omitted.
func EffectiveWindow(requested, available, minimum int) (window int, ok bool) {
	if requested <= 0 || available <= 0 {
		return 0, false
	}
	if minimum < 1 {
		minimum = 1
	}
	window = requested
	if window > available {
		window = available
	}
	if window < minimum {
		return 0, false
	}
	return window, true
}
