package avr

import "sort"

// Command groups used for UI organisation.
const (
	GroupPower    = "power"
	GroupVolume   = "volume"
	GroupInput    = "input"
	GroupSurround = "surround"
	GroupZone2    = "zone2"
	GroupPreset   = "preset"
	GroupQuery    = "query"
)

// CommandDef maps a symbolic command name to its protocol sequence.
//
// Sequence may contain multiple device tokens separated by newlines to
// express a macro; the controller sends them one per line. Table
// entries are trusted and bypass free-text validation.
type CommandDef struct {
	// Name is the symbolic identifier used by the API and MQTT bus.
	Name string `json:"name"`

	// Label is the human-readable form for UIs.
	Label string `json:"label"`

	// Group organises related commands (power, volume, zone2, ...).
	Group string `json:"group"`

	// Sequence is the literal protocol string, possibly multi-token.
	Sequence string `json:"sequence"`
}

// commandTable is the static name-to-protocol dictionary.
var commandTable = map[string]CommandDef{
	"power_on":        {Name: "power_on", Label: "Power On", Group: GroupPower, Sequence: "PWON"},
	"power_off":       {Name: "power_off", Label: "Standby", Group: GroupPower, Sequence: "PWSTANDBY"},
	"volume_up":       {Name: "volume_up", Label: "Volume Up", Group: GroupVolume, Sequence: "MVUP"},
	"volume_down":     {Name: "volume_down", Label: "Volume Down", Group: GroupVolume, Sequence: "MVDOWN"},
	"mute_on":         {Name: "mute_on", Label: "Mute", Group: GroupVolume, Sequence: "MUON"},
	"mute_off":        {Name: "mute_off", Label: "Unmute", Group: GroupVolume, Sequence: "MUOFF"},
	"input_phono":     {Name: "input_phono", Label: "Phono", Group: GroupInput, Sequence: "SIPHONO"},
	"input_cd":        {Name: "input_cd", Label: "CD", Group: GroupInput, Sequence: "SICD"},
	"input_tuner":     {Name: "input_tuner", Label: "Tuner", Group: GroupInput, Sequence: "SITUNER"},
	"input_dvd":       {Name: "input_dvd", Label: "DVD", Group: GroupInput, Sequence: "SIDVD"},
	"input_tv":        {Name: "input_tv", Label: "TV", Group: GroupInput, Sequence: "SITV"},
	"input_aux":       {Name: "input_aux", Label: "Aux", Group: GroupInput, Sequence: "SIAUX1"},
	"surround_stereo": {Name: "surround_stereo", Label: "Stereo", Group: GroupSurround, Sequence: "MSSTEREO"},
	"surround_direct": {Name: "surround_direct", Label: "Direct", Group: GroupSurround, Sequence: "MSDIRECT"},
	"zone2_on":        {Name: "zone2_on", Label: "Zone 2 On", Group: GroupZone2, Sequence: "Z2ON"},
	"zone2_off":       {Name: "zone2_off", Label: "Zone 2 Off", Group: GroupZone2, Sequence: "Z2OFF"},
	"zone2_volume_up": {Name: "zone2_volume_up", Label: "Zone 2 Volume Up", Group: GroupZone2, Sequence: "Z2UP"},
	"zone2_volume_down": {
		Name: "zone2_volume_down", Label: "Zone 2 Volume Down", Group: GroupZone2, Sequence: "Z2DOWN"},
	"zone2_mute_on":  {Name: "zone2_mute_on", Label: "Zone 2 Mute", Group: GroupZone2, Sequence: "Z2MUON"},
	"zone2_mute_off": {Name: "zone2_mute_off", Label: "Zone 2 Unmute", Group: GroupZone2, Sequence: "Z2MUOFF"},

	// Macros: listening presets expressed as multi-token sequences.
	"preset_vinyl": {
		Name:     "preset_vinyl",
		Label:    "Vinyl Evening",
		Group:    GroupPreset,
		Sequence: "SIPHONO\nMUOFF\nZ2MUOFF\nMV67\nZ267",
	},
	"preset_quiet": {
		Name:     "preset_quiet",
		Label:    "Late Night",
		Group:    GroupPreset,
		Sequence: "MV35\nZ2OFF\nMSSTEREO",
	},

	"query_status": {
		Name:     "query_status",
		Label:    "Query Status",
		Group:    GroupQuery,
		Sequence: "PW?\nMV?\nMU?\nSI?",
	},
}

// LookupCommand resolves a symbolic command name to its definition.
func LookupCommand(name string) (CommandDef, bool) {
	def, ok := commandTable[name]
	return def, ok
}

// Commands returns all command definitions sorted by group then name,
// for UI listing.
func Commands() []CommandDef {
	out := make([]CommandDef, 0, len(commandTable))
	for _, def := range commandTable {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}
