package analyzer

import "strings"

// ValueFlags are the per-record modifier flags from the combat log flag field.
type ValueFlags uint8

const (
	FlagNone     ValueFlags = 0
	FlagCritical ValueFlags = 1 << iota
	FlagFlank
	FlagKill
	FlagImmune
	FlagShieldBreak
	FlagMiss
)

// ParseValueFlags parses the pipe separated flag field, e.g. "Critical|Kill".
// Unknown flag words are ignored.
func ParseValueFlags(input string) ValueFlags {
	flags := FlagNone

	for _, flag := range strings.Split(input, "|") {
		switch flag {
		case "Critical":
			flags |= FlagCritical
		case "Flank":
			flags |= FlagFlank
		case "Kill":
			flags |= FlagKill
		case "Immune":
			flags |= FlagImmune
		case "ShieldBreak":
			flags |= FlagShieldBreak
		case "Miss":
			flags |= FlagMiss
		}
	}

	return flags
}

func (f ValueFlags) Has(other ValueFlags) bool {
	return f&other != 0
}

// ShieldHullValues is a damage or heal amount split into the shield and hull
// portions plus their sum.
type ShieldHullValues struct {
	All    float64 `json:"all"`
	Shield float64 `json:"shield"`
	Hull   float64 `json:"hull"`
}

// ShieldHullCounts is a hit or tick count split the same way as ShieldHullValues.
type ShieldHullCounts struct {
	All    uint64 `json:"all"`
	Shield uint64 `json:"shield"`
	Hull   uint64 `json:"hull"`
}

func (c ShieldHullCounts) ToValues() ShieldHullValues {
	return ShieldHullValues{All: float64(c.All), Shield: float64(c.Shield), Hull: float64(c.Hull)}
}

// Optional is a derived value that is undefined when its denominator is zero,
// such as a percentage over an empty parent or an average over zero hits.
type Optional struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

func someValue(value float64) Optional {
	return Optional{Value: value, Valid: true}
}

// ShieldHullOptionals carries an Optional per shield/hull/all component.
type ShieldHullOptionals struct {
	All    Optional `json:"all"`
	Shield Optional `json:"shield"`
	Hull   Optional `json:"hull"`
}

// MinCombatDurationSeconds is the duration floor used for all per-second
// rates. Without it a combat consisting of a single record would divide by
// (almost) zero and produce absurd DPS values.
const MinCombatDurationSeconds = 1.0

func perSeconds(total ShieldHullValues, durationSeconds float64) ShieldHullValues {
	duration := max(durationSeconds, MinCombatDurationSeconds)

	return ShieldHullValues{
		All:    total.All / duration,
		Shield: total.Shield / duration,
		Hull:   total.Hull / duration,
	}
}

func average(total ShieldHullValues, counts ShieldHullCounts) ShieldHullOptionals {
	return ShieldHullOptionals{
		All:    ratioCount(total.All, counts.All),
		Shield: ratioCount(total.Shield, counts.Shield),
		Hull:   ratioCount(total.Hull, counts.Hull),
	}
}

func ratioCount(amount float64, count uint64) Optional {
	if count == 0 {
		return Optional{}
	}

	return someValue(amount / float64(count))
}

func percentage(amount float64, total float64) Optional {
	if total == 0 {
		return Optional{}
	}

	return someValue(amount / total * 100)
}

func percentageCount(amount uint64, total uint64) Optional {
	if total == 0 {
		return Optional{}
	}

	return someValue(float64(amount) / float64(total) * 100)
}

func shieldHullPercentage(amount ShieldHullValues, total ShieldHullValues) ShieldHullOptionals {
	return ShieldHullOptionals{
		All:    percentage(amount.All, total.All),
		Shield: percentage(amount.Shield, total.Shield),
		Hull:   percentage(amount.Hull, total.Hull),
	}
}
