package model

import (
	"errors"
	"fmt"
	"strings"
)

// Faction is one of the three playable sides.
type Faction int

const (
	FactionArm Faction = iota
	FactionCore
	FactionGok
)

// ErrUnknownFaction is returned when parsing an unrecognized faction name or value.
var ErrUnknownFaction = errors.New("unknown faction")

// Factions lists all factions in wire order.
func Factions() []Faction {
	return []Faction{FactionArm, FactionCore, FactionGok}
}

// String returns the canonical lowercase wire name.
func (f Faction) String() string {
	switch f {
	case FactionArm:
		return "arm"
	case FactionCore:
		return "core"
	case FactionGok:
		return "gok"
	}
	return fmt.Sprintf("faction(%d)", int(f))
}

// Display returns the capitalized display form.
func (f Faction) Display() string {
	s := f.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseFaction parses a faction from its wire name, case-insensitively.
func ParseFaction(s string) (Faction, error) {
	switch strings.ToLower(s) {
	case "arm":
		return FactionArm, nil
	case "core":
		return FactionCore, nil
	case "gok":
		return FactionGok, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFaction, s)
}

// FactionFromValue accepts either a wire name or a numeric value.
func FactionFromValue(v any) (Faction, error) {
	switch val := v.(type) {
	case Faction:
		return val, nil
	case string:
		return ParseFaction(val)
	case int:
		if val >= 0 && val <= int(FactionGok) {
			return Faction(val), nil
		}
	case float64:
		return FactionFromValue(int(val))
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownFaction, v)
}
