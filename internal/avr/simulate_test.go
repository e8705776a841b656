package avr

import "testing"

func TestSimulateCommandVolumeSteps(t *testing.T) {
	var s State

	// First step from an unknown volume starts at the baseline.
	if !simulateCommand(&s, "MVUP") {
		t.Fatal("MVUP did not match")
	}
	if *s.Volume != simulatedVolumeBaseline+1 {
		t.Errorf("Volume = %d, want %d", *s.Volume, simulatedVolumeBaseline+1)
	}

	simulateCommand(&s, "MVDOWN")
	if *s.Volume != simulatedVolumeBaseline {
		t.Errorf("Volume = %d, want %d", *s.Volume, simulatedVolumeBaseline)
	}
}

func TestSimulateCommandVolumeClamped(t *testing.T) {
	s := State{Volume: intPtr(MaxVolume)}
	simulateCommand(&s, "MVUP")
	if *s.Volume != MaxVolume {
		t.Errorf("Volume = %d, want clamp at %d", *s.Volume, MaxVolume)
	}

	s.Volume = intPtr(MinVolume)
	simulateCommand(&s, "MVDOWN")
	if *s.Volume != MinVolume {
		t.Errorf("Volume = %d, want clamp at %d", *s.Volume, MinVolume)
	}
}

func TestSimulateCommandDirectTokens(t *testing.T) {
	var s State

	simulateCommand(&s, "PWON")
	simulateCommand(&s, "MV67")
	simulateCommand(&s, "SIPHONO")
	simulateCommand(&s, "Z2MUOFF")
	simulateCommand(&s, "Z267")

	if s.Power == nil || !*s.Power {
		t.Error("Power not set")
	}
	if s.Volume == nil || *s.Volume != 67 {
		t.Errorf("Volume = %v, want 67", s.Volume)
	}
	if s.InputSource == nil || *s.InputSource != "PHONO" {
		t.Errorf("InputSource = %v, want PHONO", s.InputSource)
	}
	if s.Zone2Muted == nil || *s.Zone2Muted {
		t.Error("Zone2Muted not cleared")
	}
	if s.Zone2Volume == nil || *s.Zone2Volume != 67 {
		t.Errorf("Zone2Volume = %v, want 67", s.Zone2Volume)
	}
}

func TestSimulateCommandZone2Steps(t *testing.T) {
	s := State{Zone2Volume: intPtr(30)}

	simulateCommand(&s, "Z2UP")
	if *s.Zone2Volume != 31 {
		t.Errorf("Zone2Volume = %d, want 31", *s.Zone2Volume)
	}

	simulateCommand(&s, "Z2DOWN")
	if *s.Zone2Volume != 30 {
		t.Errorf("Zone2Volume = %d, want 30", *s.Zone2Volume)
	}
}

func TestSimulateCommandQueryIsNoop(t *testing.T) {
	var s State
	if simulateCommand(&s, "MV?") {
		t.Error("query token should not match in simulation")
	}
}
