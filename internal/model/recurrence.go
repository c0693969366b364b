package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Frequency is how often a template repeats.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency maps free text onto a known frequency.
func ParseFrequency(value string) (Frequency, bool) {
	switch Frequency(strings.ToLower(strings.TrimSpace(value))) {
	case FrequencyDaily:
		return FrequencyDaily, true
	case FrequencyMonthly:
		return FrequencyMonthly, true
	}
	return FrequencyDaily, false
}

// Recurrence is the canonical recurrence shape: {"frequency": "daily"|"monthly"}.
type Recurrence struct {
	Frequency Frequency `json:"frequency"`
}

// legacyRecurrence covers every object shape rows were ever written with.
type legacyRecurrence struct {
	Frequency *string `json:"frequency"`
	Type      *string `json:"type"`
}

// ParseRecurrence turns any stored or submitted recurrence value into the
// canonical form. Accepted inputs: a JSON string ("daily"), bare text (daily),
// an object with "frequency", an object with the older "type" key, and
// null/empty. Anything unrecognized becomes daily.
func ParseRecurrence(raw []byte) Recurrence {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Recurrence{Frequency: FrequencyDaily}
	}

	var value string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &value); err != nil {
			return Recurrence{Frequency: FrequencyDaily}
		}
	case '{':
		var legacy legacyRecurrence
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return Recurrence{Frequency: FrequencyDaily}
		}
		switch {
		case legacy.Frequency != nil && strings.TrimSpace(*legacy.Frequency) != "":
			value = *legacy.Frequency
		case legacy.Type != nil:
			value = *legacy.Type
		}
	default:
		value = string(raw)
	}

	freq, _ := ParseFrequency(value)
	return Recurrence{Frequency: freq}
}

// Normalized returns r with an unknown or empty frequency replaced by daily.
func (r Recurrence) Normalized() Recurrence {
	freq, _ := ParseFrequency(string(r.Frequency))
	return Recurrence{Frequency: freq}
}

func (r *Recurrence) UnmarshalJSON(data []byte) error {
	*r = ParseRecurrence(data)
	return nil
}

// JSON renders the canonical stored form.
func (r Recurrence) JSON() []byte {
	raw, _ := json.Marshal(r.Normalized())
	return raw
}
