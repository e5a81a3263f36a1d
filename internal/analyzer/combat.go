package analyzer

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// TimeRange is a closed interval of log timestamps.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func newTimeRange(at time.Time) *TimeRange {
	return &TimeRange{Start: at, End: at}
}

func (r *TimeRange) Extend(at time.Time) {
	if at.Before(r.Start) {
		r.Start = at
	}

	if at.After(r.End) {
		r.End = at
	}
}

func (r *TimeRange) clone() *TimeRange {
	if r == nil {
		return nil
	}

	clone := *r

	return &clone
}

func (r *TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r *TimeRange) Seconds() float64 {
	return r.Duration().Seconds()
}

// Player is the accumulated state of one player over one combat, keyed by
// the full "Character@account" name.
type Player struct {
	Name NameHandle `json:"name"`

	// CombatTime spans the player's own damage output and drives DPS.
	// It is nil until the player deals damage.
	CombatTime *TimeRange `json:"combat_time,omitempty"`
	// ActiveTime spans every record the player participated in and drives
	// the incoming and heal rates.
	ActiveTime *TimeRange `json:"active_time,omitempty"`

	DamageOut *DamageGroup `json:"damage_out"`
	DamageIn  *DamageGroup `json:"damage_in"`
	HealOut   *HealGroup   `json:"heal_out"`
	HealIn    *HealGroup   `json:"heal_in"`

	Kills  uint64 `json:"kills"`
	Deaths uint64 `json:"deaths"`
}

func newPlayer(name NameHandle) *Player {
	return &Player{
		Name:      name,
		DamageOut: newDamageGroup(name, true),
		DamageIn:  newDamageGroup(name, true),
		HealOut:   newHealGroup(name, true),
		HealIn:    newHealGroup(name, true),
	}
}

func (p *Player) extendCombatTime(at time.Time) {
	if p.CombatTime == nil {
		p.CombatTime = newTimeRange(at)

		return
	}

	p.CombatTime.Extend(at)
}

func (p *Player) extendActiveTime(at time.Time) {
	if p.ActiveTime == nil {
		p.ActiveTime = newTimeRange(at)

		return
	}

	p.ActiveTime.Extend(at)
}

// combatDurationSeconds is the denominator for the player's outgoing rates.
// A player without any damage output has no combat time; +Inf makes every
// rate collapse to zero instead of blowing up.
func (p *Player) combatDurationSeconds() float64 {
	if p.CombatTime == nil {
		return math.Inf(1)
	}

	return p.CombatTime.Seconds()
}

func (p *Player) activeDurationSeconds() float64 {
	if p.ActiveTime == nil {
		return math.Inf(1)
	}

	return p.ActiveTime.Seconds()
}

func (p *Player) snapshot() *Player {
	clone := *p
	clone.CombatTime = p.CombatTime.clone()
	clone.ActiveTime = p.ActiveTime.clone()
	clone.DamageOut = p.DamageOut.snapshot()
	clone.DamageIn = p.DamageIn.snapshot()
	clone.HealOut = p.HealOut.snapshot()
	clone.HealIn = p.HealIn.snapshot()

	return &clone
}

func (p *Player) recalculate(hits *HitStore, ticks *HealTickStore, names *NameTracker) {
	combatSeconds := p.combatDurationSeconds()
	activeSeconds := p.activeDurationSeconds()

	p.DamageOut.recalculate(hits, combatSeconds, names)
	p.DamageIn.recalculate(hits, activeSeconds, names)
	p.HealOut.recalculate(ticks, activeSeconds)
	p.HealIn.recalculate(ticks, activeSeconds)
}

// Combat is one fully segmented slice of the log plus everything derived
// from it. All contained name handles resolve through its own Names tracker.
type Combat struct {
	ID    uuid.UUID    `json:"id"`
	Names *NameTracker `json:"-"`

	// CombatTime spans all player caused damage; ActiveTime spans every
	// record of the combat.
	CombatTime *TimeRange `json:"combat_time,omitempty"`
	ActiveTime TimeRange  `json:"active_time"`

	// LogStart and LogEnd delimit the combat's raw byte range in the log
	// file for export.
	LogStart int64 `json:"log_start"`
	LogEnd   int64 `json:"log_end"`

	Players map[string]*Player `json:"players"`

	TotalDamageOut ShieldHullValues `json:"total_damage_out"`
	TotalDamageIn  ShieldHullValues `json:"total_damage_in"`
	TotalHitsOut   ShieldHullCounts `json:"total_hits_out"`
	TotalHitsIn    ShieldHullCounts `json:"total_hits_in"`
	TotalHealOut   ShieldHullValues `json:"total_heal_out"`
	TotalHealIn    ShieldHullValues `json:"total_heal_in"`
	TotalTicksOut  ShieldHullCounts `json:"total_ticks_out"`
	TotalTicksIn   ShieldHullCounts `json:"total_ticks_in"`

	TotalKills  uint64 `json:"total_kills"`
	TotalDeaths uint64 `json:"total_deaths"`

	// matchedNames are the CombatNameRules names that matched, in rule
	// order, forming the combat's display name.
	matchedNames []string
}

func newCombat(record *Record) *Combat {
	return &Combat{
		ID:         uuid.Must(uuid.NewV4()),
		Names:      NewNameTracker(),
		ActiveTime: TimeRange{Start: record.Time, End: record.Time},
		LogStart:   record.LogStart,
		LogEnd:     record.LogEnd,
		Players:    map[string]*Player{},
	}
}

// updateMetaData interns the record's names with their role flags and
// extends the combat's time and byte ranges. Called for every record of the
// combat, including all-zero ones that carry no statistical value.
func (c *Combat) updateMetaData(record *Record) {
	sourceFlags := NameSource
	if record.Source.IsPlayer() {
		sourceFlags |= NamePlayer
	}

	c.Names.Insert(record.Source.Name, sourceFlags)
	c.Names.Insert(record.Source.UniqueName, NameSourceUnique)

	subFlags := NameIndirectSource
	if record.SubSource.IsPlayer() {
		subFlags |= NamePlayer
	}

	c.Names.Insert(record.SubSource.Name, subFlags)
	c.Names.Insert(record.SubSource.UniqueName, NameIndirectSourceUnique)

	targetFlags := NameTarget
	if record.Target.IsPlayer() {
		targetFlags |= NamePlayer
	}

	c.Names.Insert(record.Target.Name, targetFlags)
	c.Names.Insert(record.Target.UniqueName, NameTargetUnique)

	c.Names.Insert(record.ValueName, NameValue)
	c.Names.Insert(record.ValueType, NameDamageType)

	c.ActiveTime.Extend(record.Time)

	if record.IsPlayerOutDamage() {
		if c.CombatTime == nil {
			c.CombatTime = newTimeRange(record.Time)
		} else {
			c.CombatTime.Extend(record.Time)
		}
	}

	if record.LogStart < c.LogStart {
		c.LogStart = record.LogStart
	}

	if record.LogEnd > c.LogEnd {
		c.LogEnd = record.LogEnd
	}
}

// Snapshot deep copies the combat so consumers on other goroutines can
// read it while the engine keeps mutating its own instance on later
// passes.
func (c *Combat) Snapshot() *Combat {
	clone := *c
	clone.Names = c.Names.Clone()
	clone.CombatTime = c.CombatTime.clone()
	clone.matchedNames = slices.Clone(c.matchedNames)
	clone.Players = make(map[string]*Player, len(c.Players))

	for name, player := range c.Players {
		clone.Players[name] = player.snapshot()
	}

	return &clone
}

func (c *Combat) getPlayer(fullName string) *Player {
	if player, found := c.Players[fullName]; found {
		return player
	}

	player := newPlayer(c.Names.Insert(fullName, NamePlayer))
	c.Players[fullName] = player

	return player
}

// offsetMillis positions a record inside the combat relative to its first
// record.
func (c *Combat) offsetMillis(at time.Time) uint32 {
	offset := at.Sub(c.ActiveTime.Start).Milliseconds()
	if offset < 0 {
		return 0
	}

	return uint32(offset)
}

// Name is the combat's display name, derived from the naming rules that
// matched or a generic fallback.
func (c *Combat) Name() string {
	if len(c.matchedNames) > 0 {
		return strings.Join(c.matchedNames, ", ")
	}

	return "Combat"
}

// Identifier is the display name plus the combat's time range, unique
// enough for list selection.
func (c *Combat) Identifier() string {
	return fmt.Sprintf("%s %s - %s",
		c.Name(),
		c.ActiveTime.Start.Format("15:04:05"),
		c.ActiveTime.End.Format("15:04:05"))
}

// PlayerNames returns the participating player names sorted for stable
// display order.
func (c *Combat) PlayerNames() []string {
	names := make([]string, 0, len(c.Players))
	for name := range c.Players {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// recalculate folds all pending raw events into every player's metrics,
// re-derives the combat wide totals and normalizes all percentages against
// them.
func (c *Combat) recalculate(hits *HitStore, ticks *HealTickStore, nameRules []NamedRule) {
	c.TotalDamageOut = ShieldHullValues{}
	c.TotalDamageIn = ShieldHullValues{}
	c.TotalHitsOut = ShieldHullCounts{}
	c.TotalHitsIn = ShieldHullCounts{}
	c.TotalHealOut = ShieldHullValues{}
	c.TotalHealIn = ShieldHullValues{}
	c.TotalTicksOut = ShieldHullCounts{}
	c.TotalTicksIn = ShieldHullCounts{}
	c.TotalKills = 0
	c.TotalDeaths = 0

	for _, player := range c.Players {
		player.recalculate(hits, ticks, c.Names)

		addValues(&c.TotalDamageOut, player.DamageOut.TotalDamage)
		addValues(&c.TotalDamageIn, player.DamageIn.TotalDamage)
		addCounts(&c.TotalHitsOut, player.DamageOut.Hits)
		addCounts(&c.TotalHitsIn, player.DamageIn.Hits)
		addValues(&c.TotalHealOut, player.HealOut.TotalHeal)
		addValues(&c.TotalHealIn, player.HealIn.TotalHeal)
		addCounts(&c.TotalTicksOut, player.HealOut.Ticks)
		addCounts(&c.TotalTicksIn, player.HealIn.Ticks)
		c.TotalKills += player.Kills
		c.TotalDeaths += player.Deaths
	}

	for _, player := range c.Players {
		player.DamageOut.recalculatePercentages(c.TotalDamageOut, c.TotalHitsOut)
		player.DamageIn.recalculatePercentages(c.TotalDamageIn, c.TotalHitsIn)
		player.HealOut.recalculatePercentages(c.TotalHealOut, c.TotalTicksOut)
		player.HealIn.recalculatePercentages(c.TotalHealIn, c.TotalTicksIn)
	}

	c.detectName(nameRules)
}

func (c *Combat) detectName(nameRules []NamedRule) {
	c.matchedNames = c.matchedNames[:0]

	for _, rule := range nameRules {
		if rule.MatchesNames(c.Names) {
			c.matchedNames = append(c.matchedNames, rule.Name)
		}
	}
}

func addValues(total *ShieldHullValues, amount ShieldHullValues) {
	total.All += amount.All
	total.Shield += amount.Shield
	total.Hull += amount.Hull
}

func addCounts(total *ShieldHullCounts, amount ShieldHullCounts) {
	total.All += amount.All
	total.Shield += amount.Shield
	total.Hull += amount.Hull
}
