package avr

// simulatedResponse is the fixed placeholder returned by ReadResponse in
// simulation mode. It deliberately matches no interpreter rule, so
// feeding it back through Apply never corrupts state.
const simulatedResponse = "DEBUG: Simulated response"

// simulatedVolumeBaseline is the starting volume assumed for relative
// volume steps when the simulated volume has never been set.
const simulatedVolumeBaseline = 50

// simulateCommand mirrors the receiver's command vocabulary against a
// local State, so the rest of the system behaves identically with or
// without hardware. Relative volume steps (MVUP/MVDOWN, Z2UP/Z2DOWN)
// adjust by one, clamped to [0,98]; everything else reuses the response
// interpreter, since command and response tokens share the same shapes.
//
// Returns true if any field was written. The caller holds the state lock.
func simulateCommand(s *State, command string) bool {
	switch command {
	case "MVUP":
		s.Volume = intPtr(clampVolume(simulatedVolume(s.Volume) + 1))
		return true
	case "MVDOWN":
		s.Volume = intPtr(clampVolume(simulatedVolume(s.Volume) - 1))
		return true
	case "Z2UP":
		s.Zone2Volume = intPtr(clampVolume(simulatedVolume(s.Zone2Volume) + 1))
		return true
	case "Z2DOWN":
		s.Zone2Volume = intPtr(clampVolume(simulatedVolume(s.Zone2Volume) - 1))
		return true
	}

	return Apply(s, command)
}

func simulatedVolume(p *int) int {
	if p == nil {
		return simulatedVolumeBaseline
	}
	return *p
}

func clampVolume(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}
