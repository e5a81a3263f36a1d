package analyzer

import (
	"strings"
	"time"
)

// DefaultCombatSeparation is the inactivity gap after which a new record is
// considered the start of a new combat. Product constant, overridable via
// Settings.
const DefaultCombatSeparation = 90 * time.Second

// MatchAspect selects which part of a record a rule is checked against.
type MatchAspect string

const (
	// AspectSourceOrTargetName matches the display name of the source or
	// target entity.
	AspectSourceOrTargetName MatchAspect = "source_or_target_name"
	// AspectSourceOrTargetUniqueName matches the internal unique name of the
	// source or target entity.
	AspectSourceOrTargetUniqueName MatchAspect = "source_or_target_unique_name"
	// AspectSubSourceName matches the display name of the sub source, which
	// is usually a pet or summon.
	AspectSubSourceName MatchAspect = "sub_source_name"
	// AspectSubSourceUniqueName matches the internal unique name of the sub
	// source.
	AspectSubSourceUniqueName MatchAspect = "sub_source_unique_name"
	// AspectValueName matches the damage or heal ability name.
	AspectValueName MatchAspect = "value_name"
)

// MatchMethod is the string predicate applied by a rule.
type MatchMethod string

const (
	MethodEquals     MatchMethod = "equals"
	MethodStartsWith MatchMethod = "starts_with"
	MethodEndsWith   MatchMethod = "ends_with"
	MethodContains   MatchMethod = "contains"
)

func (m MatchMethod) check(expression string, value string) bool {
	switch m {
	case MethodEquals:
		return value == expression
	case MethodStartsWith:
		return strings.HasPrefix(value, expression)
	case MethodEndsWith:
		return strings.HasSuffix(value, expression)
	case MethodContains:
		return strings.Contains(value, expression)
	default:
		return false
	}
}

// MatchRule is a single user configurable string predicate.
type MatchRule struct {
	Enabled    bool        `mapstructure:"enabled" json:"enabled"`
	Aspect     MatchAspect `mapstructure:"aspect" json:"aspect"`
	Method     MatchMethod `mapstructure:"method" json:"method"`
	Expression string      `mapstructure:"expression" json:"expression"`
}

// MatchesRecord checks the rule against a single parsed record. Used for the
// grouping rules, which must be decided at insertion time.
func (r MatchRule) MatchesRecord(record *Record) bool {
	if !r.Enabled || r.Expression == "" {
		return false
	}

	switch r.Aspect {
	case AspectSourceOrTargetName:
		return r.Method.check(r.Expression, record.Source.Name) ||
			r.Method.check(r.Expression, record.Target.Name)
	case AspectSourceOrTargetUniqueName:
		return r.Method.check(r.Expression, record.Source.UniqueName) ||
			r.Method.check(r.Expression, record.Target.UniqueName)
	case AspectSubSourceName:
		return r.Method.check(r.Expression, record.SubSource.Name)
	case AspectSubSourceUniqueName:
		return r.Method.check(r.Expression, record.SubSource.UniqueName)
	case AspectValueName:
		return r.Method.check(r.Expression, record.ValueName)
	default:
		return false
	}
}

// MatchesNames checks the rule against all names a combat has interned so
// far, using the role flags recorded by the tracker. Used for combat naming,
// which is decided over the whole combat rather than per record.
func (r MatchRule) MatchesNames(names *NameTracker) bool {
	if !r.Enabled || r.Expression == "" {
		return false
	}

	check := func(name string) bool { return r.Method.check(r.Expression, name) }

	switch r.Aspect {
	case AspectSourceOrTargetName:
		return names.anyNameMatches(NameSource|NameTarget, check)
	case AspectSourceOrTargetUniqueName:
		return names.anyNameMatches(NameSourceUnique|NameTargetUnique, check)
	case AspectSubSourceName:
		return names.anyNameMatches(NameIndirectSource, check)
	case AspectSubSourceUniqueName:
		return names.anyNameMatches(NameIndirectSourceUnique, check)
	case AspectValueName:
		return names.anyNameMatches(NameValue, check)
	default:
		return false
	}
}

// NamedRule attaches a display name to a set of rules. The rule group
// matches when any of its rules matches.
type NamedRule struct {
	Name  string      `mapstructure:"name" json:"name"`
	Rules []MatchRule `mapstructure:"rules" json:"rules"`
}

func (g NamedRule) MatchesRecord(record *Record) bool {
	for _, rule := range g.Rules {
		if rule.MatchesRecord(record) {
			return true
		}
	}

	return false
}

func (g NamedRule) MatchesNames(names *NameTracker) bool {
	for _, rule := range g.Rules {
		if rule.MatchesNames(names) {
			return true
		}
	}

	return false
}

// Settings configures a single Analyzer instance. Changing any of these
// requires discarding the engine and creating a new one.
type Settings struct {
	// CombatlogFile is the path of the append-only log written by the game
	// client.
	CombatlogFile string `mapstructure:"combatlog_file" json:"combatlog_file"`
	// StartOffset allows replay from a byte offset instead of the file start.
	StartOffset int64 `mapstructure:"start_offset" json:"start_offset"`
	// CombatSeparation is the inactivity gap that splits combats.
	CombatSeparation time.Duration `mapstructure:"combat_separation" json:"combat_separation"`
	// CombatNameRules derive a display name for a combat from the names seen
	// in it, e.g. naming a combat after a known boss entity.
	CombatNameRules []NamedRule `mapstructure:"combat_name_rules" json:"combat_name_rules"`
	// GroupingReversalRules swap the value/pet order in the grouping path so
	// that matching pets group under their summon name instead.
	GroupingReversalRules []MatchRule `mapstructure:"grouping_reversal_rules" json:"grouping_reversal_rules"`
	// CustomGroupRules add an extra outer grouping level named after the
	// rule for matching records.
	CustomGroupRules []NamedRule `mapstructure:"custom_group_rules" json:"custom_group_rules"`
}

func (s Settings) separation() time.Duration {
	if s.CombatSeparation <= 0 {
		return DefaultCombatSeparation
	}

	return s.CombatSeparation
}
