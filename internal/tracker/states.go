package tracker

import "github.com/slipstreamco/slipcast/internal/events"

// Melee action state IDs. Only the handful of states narration cares about
// are named here; everything else passes through unrecognized.
const (
	stateLandingFallSpecial uint16 = 43
	stateLandingAirN        uint16 = 59
	stateLandingAirF        uint16 = 60
	stateLandingAirB        uint16 = 61
	stateLandingAirHi       uint16 = 62
	stateLandingAirLw       uint16 = 63
	stateGuardOn            uint16 = 178
	stateGuard              uint16 = 179
	stateDownBoundU         uint16 = 183
	stateDownBoundD         uint16 = 191
	statePassive            uint16 = 199
	statePassiveStandF      uint16 = 200
	statePassiveStandB      uint16 = 201
	stateCatch              uint16 = 212
	stateCatchDash          uint16 = 214
	stateEscapeAir          uint16 = 236
	stateCliffCatch         uint16 = 252
)

// classifyTransition maps an action-state edge to a recognized subtype.
// Unrecognized transitions return ok=false and are silently ignored.
func classifyTransition(prev, cur uint16) (events.Subtype, bool) {
	// Wavedash needs the previous state: airdodge into special landing.
	if prev == stateEscapeAir && cur == stateLandingFallSpecial {
		return events.SubtypeWavedash, true
	}

	switch cur {
	case statePassive, statePassiveStandF, statePassiveStandB:
		return events.SubtypeTech, true
	case stateDownBoundU, stateDownBoundD:
		return events.SubtypeTechMiss, true
	case stateGuardOn, stateGuard:
		// Entering shield from shield (GuardOn -> Guard) is the same press.
		if prev == stateGuardOn || prev == stateGuard {
			return "", false
		}
		return events.SubtypeShield, true
	case stateCatch, stateCatchDash:
		return events.SubtypeGrab, true
	case stateCliffCatch:
		return events.SubtypeRecovery, true
	case stateLandingAirN, stateLandingAirF, stateLandingAirB, stateLandingAirHi, stateLandingAirLw:
		return events.SubtypeAerialLanding, true
	}
	return "", false
}

func stateName(state uint16) string {
	switch state {
	case stateLandingFallSpecial:
		return "special landing"
	case stateLandingAirN:
		return "nair landing"
	case stateLandingAirF:
		return "fair landing"
	case stateLandingAirB:
		return "bair landing"
	case stateLandingAirHi:
		return "uair landing"
	case stateLandingAirLw:
		return "dair landing"
	case stateGuardOn, stateGuard:
		return "shield"
	case stateDownBoundU, stateDownBoundD:
		return "missed tech"
	case statePassive:
		return "tech in place"
	case statePassiveStandF:
		return "tech forward"
	case statePassiveStandB:
		return "tech back"
	case stateCatch:
		return "grab"
	case stateCatchDash:
		return "dash grab"
	case stateCliffCatch:
		return "ledge grab"
	}
	return "unknown"
}
