package consultation

import "fmt"

// Frequency is a dosing schedule code: morning-noon-night, or SOS.
type Frequency string

const (
	FrequencyUnset Frequency = ""
	TwiceDaily     Frequency = "1-0-1"
	ThriceDaily    Frequency = "1-1-1"
	MorningOnly    Frequency = "1-0-0"
	NightOnly      Frequency = "0-0-1"
	AsNeeded       Frequency = "SOS"
)

// Frequencies lists the selectable codes in display order.
var Frequencies = []Frequency{TwiceDaily, ThriceDaily, MorningOnly, NightOnly, AsNeeded}

var frequencyLabels = map[Frequency]string{
	TwiceDaily:  "Twice daily",
	ThriceDaily: "Thrice daily",
	MorningOnly: "Morning",
	NightOnly:   "Night",
	AsNeeded:    "If needed",
}

// ParseFrequency accepts a known code or the empty string.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if f == FrequencyUnset {
		return f, nil
	}
	if _, ok := frequencyLabels[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
	return f, nil
}

// Known reports whether f is one of the selectable codes.
func (f Frequency) Known() bool {
	_, ok := frequencyLabels[f]
	return ok
}

// Label renders f the way it is shown in a picker, e.g. "1-0-1 (Twice daily)".
func (f Frequency) Label() string {
	if l, ok := frequencyLabels[f]; ok {
		return fmt.Sprintf("%s (%s)", f, l)
	}
	return string(f)
}
