package avr

import "time"

// Volume domain bounds for main zone and zone 2.
const (
	MinVolume = 0
	MaxVolume = 98
)

// State is a snapshot of the receiver's known state.
//
// Every field starts unknown (nil) until a response from the receiver
// determines it. Fields the receiver has never reported remain nil, so
// observers can distinguish "off" from "not yet known".
//
// Ownership: the State held by a Controller is mutated only under its
// state lock. Observers always receive deep copies via Clone, never a
// shared reference.
type State struct {
	// Power is the main zone power, nil if unknown.
	Power *bool `json:"power,omitempty"`

	// Volume is the main zone volume (0-98), nil if unknown.
	Volume *int `json:"volume,omitempty"`

	// Muted is the main zone mute, nil if unknown.
	Muted *bool `json:"muted,omitempty"`

	// InputSource is the active input (e.g. "PHONO", "CD"), nil if unknown.
	InputSource *string `json:"input_source,omitempty"`

	// SurroundMode is the surround mode (e.g. "STEREO"), nil if unknown.
	SurroundMode *string `json:"surround_mode,omitempty"`

	// Zone2Power is the zone 2 power, nil if unknown.
	Zone2Power *bool `json:"zone2_power,omitempty"`

	// Zone2Volume is the zone 2 volume (0-98), nil if unknown.
	Zone2Volume *int `json:"zone2_volume,omitempty"`

	// Zone2Muted is the zone 2 mute, nil if unknown.
	Zone2Muted *bool `json:"zone2_muted,omitempty"`

	// LastUpdated is when any field was last written (UTC).
	// Zero until the first response is interpreted.
	LastUpdated time.Time `json:"last_updated"`
}

// Clone returns a deep copy of the state. Pointer fields are duplicated
// so the copy shares no memory with the original.
func (s State) Clone() State {
	out := s
	out.Power = cloneBool(s.Power)
	out.Volume = cloneInt(s.Volume)
	out.Muted = cloneBool(s.Muted)
	out.InputSource = cloneString(s.InputSource)
	out.SurroundMode = cloneString(s.SurroundMode)
	out.Zone2Power = cloneBool(s.Zone2Power)
	out.Zone2Volume = cloneInt(s.Zone2Volume)
	out.Zone2Muted = cloneBool(s.Zone2Muted)
	return out
}

// Equal reports whether two snapshots hold the same field values.
// LastUpdated is ignored; only receiver-reported fields are compared.
func (s State) Equal(o State) bool {
	return boolPtrEqual(s.Power, o.Power) &&
		intPtrEqual(s.Volume, o.Volume) &&
		boolPtrEqual(s.Muted, o.Muted) &&
		stringPtrEqual(s.InputSource, o.InputSource) &&
		stringPtrEqual(s.SurroundMode, o.SurroundMode) &&
		boolPtrEqual(s.Zone2Power, o.Zone2Power) &&
		intPtrEqual(s.Zone2Volume, o.Zone2Volume) &&
		boolPtrEqual(s.Zone2Muted, o.Zone2Muted)
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolPtr(v bool) *bool       { return &v }
func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }
