package analyzer

import "math"

type HitKind int

const (
	// HitShield is damage absorbed by shields.
	HitShield HitKind = iota
	// HitShieldDrain is shield damage from drain abilities. It counts as a
	// shield hit but has no base damage and is excluded from resistance.
	HitShieldDrain
	// HitHull is damage to the hull.
	HitHull
)

// BaseHit is one raw damage event before it is stamped with its combat time
// offset. Amounts are always absolute values.
type BaseHit struct {
	Damage float64
	Flags  ValueFlags
	Kind   HitKind
	// PreventedToHull is only set for shield hits: the damage the shield
	// kept away from the hull.
	PreventedToHull float64
	// BaseDamage is only set for hull hits: the damage before resistances.
	BaseDamage float64
}

func shieldHit(damage float64, flags ValueFlags, preventedToHull float64) BaseHit {
	return BaseHit{
		Damage:          math.Abs(damage),
		Flags:           flags,
		Kind:            HitShield,
		PreventedToHull: math.Abs(preventedToHull),
	}
}

func shieldDrainHit(damage float64, flags ValueFlags) BaseHit {
	return BaseHit{Damage: math.Abs(damage), Flags: flags, Kind: HitShieldDrain}
}

func hullHit(damage float64, flags ValueFlags, baseDamage float64) BaseHit {
	return BaseHit{
		Damage:     math.Abs(damage),
		Flags:      flags,
		Kind:       HitHull,
		BaseDamage: math.Abs(baseDamage),
	}
}

// Hit is a raw damage event positioned inside its combat.
type Hit struct {
	BaseHit
	// TimeMillis is the offset from the start of the combat.
	TimeMillis uint32
}

func (b BaseHit) ToHit(timeMillis uint32) Hit {
	return Hit{BaseHit: b, TimeMillis: timeMillis}
}

// MaxOneHit is the rolling largest single damage event of a subtree together
// with the name that caused it.
type MaxOneHit struct {
	Name   NameHandle
	Damage float64
}

func (m *MaxOneHit) Update(name NameHandle, damage float64) {
	if m.Damage < damage {
		m.Name = name
		m.Damage = damage
	}
}

func (m *MaxOneHit) UpdateFromHits(name NameHandle, hits []Hit) {
	for i := range hits {
		m.Update(name, hits[i].Damage)
	}
}

// DamageMetrics is the cumulative state of one grouping tree node plus the
// derived values recomputed each pass. Cumulative fields are only ever
// mutated by applying deltas, never rebuilt from scratch; that is what keeps
// a recomputation pass proportional to the number of new events.
type DamageMetrics struct {
	Hits                                ShieldHullCounts `json:"hits"`
	Crits                               uint64           `json:"crits"`
	Flanks                              uint64           `json:"flanks"`
	Misses                              uint64           `json:"misses"`
	Kills                               uint64           `json:"kills"`
	TotalDamage                         ShieldHullValues `json:"total_damage"`
	TotalDamagePreventedToHullByShields float64          `json:"total_damage_prevented_to_hull_by_shields"`
	TotalBaseDamage                     float64          `json:"total_base_damage"`
	TotalShieldDrain                    float64          `json:"total_shield_drain"`

	DPS              ShieldHullValues    `json:"dps"`
	AverageHit       ShieldHullOptionals `json:"average_hit"`
	CriticalChance   Optional            `json:"critical_chance"`
	FlankRate        Optional            `json:"flank_rate"`
	Accuracy         Optional            `json:"accuracy"`
	DamageResistance Optional            `json:"damage_resistance"`
}

// damageDelta is the contribution of newly observed hits since the last
// pass. It is computed at the leaves and folded into every ancestor on the
// way up, so parents never have to be re-derived from their children.
type damageDelta struct {
	shieldHits   uint64
	hullHits     uint64
	crits        uint64
	flanks       uint64
	misses       uint64
	kills        uint64
	shieldDamage float64
	hullDamage   float64
	prevented    float64
	baseDamage   float64
	shieldDrain  float64
}

func foldHits(hits []Hit) damageDelta {
	var delta damageDelta

	for i := range hits {
		hit := &hits[i]

		switch hit.Kind {
		case HitShield, HitShieldDrain:
			delta.shieldHits++
		case HitHull:
			delta.hullHits++
		}

		if hit.Flags.Has(FlagMiss) {
			delta.misses++
		}

		// Immune hits count toward hit totals but carry no damage.
		if hit.Flags.Has(FlagImmune) {
			continue
		}

		switch hit.Kind {
		case HitShield:
			delta.shieldDamage += hit.Damage
			delta.prevented += hit.PreventedToHull
		case HitShieldDrain:
			delta.shieldDamage += hit.Damage
			delta.shieldDrain += hit.Damage
		case HitHull:
			delta.hullDamage += hit.Damage
			delta.baseDamage += hit.BaseDamage
		}

		if hit.Flags.Has(FlagCritical) {
			delta.crits++
		}

		if hit.Flags.Has(FlagFlank) {
			delta.flanks++
		}

		if hit.Flags.Has(FlagKill) {
			delta.kills++
		}
	}

	return delta
}

func (d *damageDelta) add(other damageDelta) {
	d.shieldHits += other.shieldHits
	d.hullHits += other.hullHits
	d.crits += other.crits
	d.flanks += other.flanks
	d.misses += other.misses
	d.kills += other.kills
	d.shieldDamage += other.shieldDamage
	d.hullDamage += other.hullDamage
	d.prevented += other.prevented
	d.baseDamage += other.baseDamage
	d.shieldDrain += other.shieldDrain
}

func (m *DamageMetrics) apply(delta damageDelta) {
	m.Hits.Shield += delta.shieldHits
	m.Hits.Hull += delta.hullHits
	m.Hits.All = m.Hits.Shield + m.Hits.Hull
	m.Crits += delta.crits
	m.Flanks += delta.flanks
	m.Misses += delta.misses
	m.Kills += delta.kills
	m.TotalDamage.Shield += delta.shieldDamage
	m.TotalDamage.Hull += delta.hullDamage
	m.TotalDamage.All = m.TotalDamage.Shield + m.TotalDamage.Hull
	m.TotalDamagePreventedToHullByShields += delta.prevented
	m.TotalBaseDamage += delta.baseDamage
	m.TotalShieldDrain += delta.shieldDrain
}

// finalize recomputes all derived values from the cumulative state.
func (m *DamageMetrics) finalize(combatDurationSeconds float64) {
	m.DPS = perSeconds(m.TotalDamage, combatDurationSeconds)
	m.AverageHit = average(m.TotalDamage, m.Hits)
	m.CriticalChance = percentageCount(m.Crits, m.Hits.Hull)
	m.FlankRate = percentageCount(m.Flanks, m.Hits.Hull)
	m.Accuracy = accuracy(m.Misses, m.Hits.All)
	m.DamageResistance = damageResistancePercentage(m.TotalDamage, m.TotalBaseDamage, m.TotalShieldDrain)
}

func accuracy(misses uint64, hits uint64) Optional {
	missRate := percentageCount(misses, hits)
	if !missRate.Valid {
		return Optional{}
	}

	return someValue(100 - missRate.Value)
}

// damageResistancePercentage is the fraction of nominal (pre mitigation)
// damage that never reached shields or hull. Shield drains are excluded
// because they have no base damage counterpart. Undefined without any base
// damage.
func damageResistancePercentage(totalDamage ShieldHullValues, totalBaseDamage float64, totalShieldDrain float64) Optional {
	if totalBaseDamage == 0 {
		return Optional{}
	}

	damageWithoutDrain := totalDamage.All - totalShieldDrain

	return someValue((1 - damageWithoutDrain/totalBaseDamage) * 100)
}
