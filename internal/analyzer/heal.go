package analyzer

import "math"

type HealKind int

const (
	HealShield HealKind = iota
	HealHull
)

// BaseHealTick is one raw heal event before it is stamped with its combat
// time offset.
type BaseHealTick struct {
	Amount float64
	Flags  ValueFlags
	Kind   HealKind
}

func shieldHealTick(amount float64, flags ValueFlags) BaseHealTick {
	return BaseHealTick{Amount: math.Abs(amount), Flags: flags, Kind: HealShield}
}

func hullHealTick(amount float64, flags ValueFlags) BaseHealTick {
	return BaseHealTick{Amount: math.Abs(amount), Flags: flags, Kind: HealHull}
}

// HealTick is a raw heal event positioned inside its combat.
type HealTick struct {
	BaseHealTick
	TimeMillis uint32
}

func (b BaseHealTick) ToTick(timeMillis uint32) HealTick {
	return HealTick{BaseHealTick: b, TimeMillis: timeMillis}
}

// HealMetrics mirrors DamageMetrics for heal trees.
type HealMetrics struct {
	Ticks     ShieldHullCounts `json:"ticks"`
	Crits     uint64           `json:"crits"`
	TotalHeal ShieldHullValues `json:"total_heal"`

	HPS            ShieldHullValues    `json:"hps"`
	TicksPerSecond ShieldHullValues    `json:"ticks_per_second"`
	AverageHeal    ShieldHullOptionals `json:"average_heal"`
	CriticalChance Optional            `json:"critical_chance"`
}

type healDelta struct {
	shieldTicks uint64
	hullTicks   uint64
	crits       uint64
	shieldHeal  float64
	hullHeal    float64
}

func foldTicks(ticks []HealTick) healDelta {
	var delta healDelta

	for i := range ticks {
		tick := &ticks[i]

		switch tick.Kind {
		case HealShield:
			delta.shieldTicks++
			delta.shieldHeal += tick.Amount
		case HealHull:
			delta.hullTicks++
			delta.hullHeal += tick.Amount
		}

		if tick.Flags.Has(FlagCritical) {
			delta.crits++
		}
	}

	return delta
}

func (d *healDelta) add(other healDelta) {
	d.shieldTicks += other.shieldTicks
	d.hullTicks += other.hullTicks
	d.crits += other.crits
	d.shieldHeal += other.shieldHeal
	d.hullHeal += other.hullHeal
}

func (m *HealMetrics) apply(delta healDelta) {
	m.Ticks.Shield += delta.shieldTicks
	m.Ticks.Hull += delta.hullTicks
	m.Ticks.All = m.Ticks.Shield + m.Ticks.Hull
	m.Crits += delta.crits
	m.TotalHeal.Shield += delta.shieldHeal
	m.TotalHeal.Hull += delta.hullHeal
	m.TotalHeal.All = m.TotalHeal.Shield + m.TotalHeal.Hull
}

func (m *HealMetrics) finalize(activeDurationSeconds float64) {
	m.HPS = perSeconds(m.TotalHeal, activeDurationSeconds)
	m.TicksPerSecond = perSeconds(m.Ticks.ToValues(), activeDurationSeconds)
	m.AverageHeal = average(m.TotalHeal, m.Ticks)
	m.CriticalChance = percentageCount(m.Crits, m.Ticks.Hull)
}
