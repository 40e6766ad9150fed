// ABOUTME: Loss driven bandwidth ceilings per transport layer
// ABOUTME: Heavy reported loss tightens a layer's ceiling; clean reports relax it again
package server

// Adaptation tunes how reported loss moves a layer ceiling
type Adaptation struct {
	Enabled bool
	// DecreaseLoss is the loss ratio above which a ceiling tightens
	DecreaseLoss float64
	// IncreaseLoss is the loss ratio below which a ceiling relaxes
	IncreaseLoss float64
}

// DefaultAdaptation tightens above 10% loss and relaxes below 2%
func DefaultAdaptation() Adaptation {
	return Adaptation{Enabled: true, DecreaseLoss: 0.10, IncreaseLoss: 0.02}
}

// adjust returns the next ceiling for one layer. limit is the current
// ceiling (0 for none), usage the layer's bytes per second at the current
// quality and full its bytes per second at the top quality.
func (a Adaptation) adjust(limit, usage, full int, loss float64) int {
	if !a.Enabled {
		return limit
	}

	switch {
	case loss > a.DecreaseLoss:
		base := usage
		if limit > 0 && limit < base {
			base = limit
		}
		if base <= 0 {
			return limit
		}
		next := base * 3 / 4
		if next < 1 {
			next = 1
		}
		return next

	case loss < a.IncreaseLoss:
		if limit == 0 {
			return 0
		}
		next := limit + limit/8 + 1
		if full > 0 && next >= full {
			return 0
		}
		return next
	}
	return limit
}
