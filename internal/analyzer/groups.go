package analyzer

import "maps"

// The grouping trees classify every raw event under a path of name handles.
// Pool nodes are structural grouping levels (a pet, an attacking entity, a
// custom rule); non pool nodes are the terminal damage or heal names that
// own raw events. A path is consumed from its LAST element inwards: the
// outermost grouping level is path[len-1] and path[0] addresses the leaf.
//
// "Shield" damage type suppression: a shield facing reports the generic
// "Shield" type for every absorbed tick. To keep the damage type set
// readable, "Shield" is dropped from a node's set as soon as any specific
// type is present and never added when one already is.
const shieldDamageTypeName = "Shield"

// DamageGroup is one node of a damage grouping tree. The root of each tree
// is a pool node named after the player it belongs to.
type DamageGroup struct {
	Name      NameHandle
	SubGroups map[NameHandle]*DamageGroup

	DamageMetrics
	MaxOneHit        MaxOneHit
	DamagePercentage ShieldHullOptionals
	HitsPercentage   ShieldHullOptionals
	// DamageTypes is the set of distinct value types routed through a non
	// pool node, for display labels.
	DamageTypes map[NameHandle]struct{}

	// Values is the node's event view: an owned vector for leaves, a range
	// into the shared arena for branches.
	Values Hits

	isPool bool
}

func newDamageGroup(name NameHandle, isPool bool) *DamageGroup {
	group := &DamageGroup{Name: name, isPool: isPool}
	if !isPool {
		group.Values = newLeaf[Hit]()
	}

	return group
}

func (g *DamageGroup) IsPool() bool {
	return g.isPool
}

// AddDamage routes one raw hit to the leaf addressed by path, creating any
// missing intermediate pool nodes.
func (g *DamageGroup) AddDamage(path []NameHandle, hit BaseHit, damageType NameHandle, offsetMillis uint32, names *NameTracker) {
	if len(path) == 1 {
		leaf := g.getNonPoolSubGroup(path[0])
		leaf.Values.Push(hit.ToHit(offsetMillis))
		leaf.addDamageType(damageType, names)

		return
	}

	g.getPoolSubGroup(path[len(path)-1]).AddDamage(path[:len(path)-1], hit, damageType, offsetMillis, names)
}

func (g *DamageGroup) getNonPoolSubGroup(name NameHandle) *DamageGroup {
	candidate := g.getSubGroupOrCreateNonPool(name)
	if !candidate.isPool {
		return candidate
	}

	return candidate.getNonPoolSubGroup(name)
}

// getPoolSubGroup returns the pool node for name, promoting an existing non
// pool node in place: the previous leaf becomes the sole child of a new pool
// node at the same position, keeping its raw events and its accumulated
// metrics untouched. The pool starts from the leaf's cumulative state so
// that already-folded events are not lost from the subtree totals; only
// future deltas need to reach it.
func (g *DamageGroup) getPoolSubGroup(name NameHandle) *DamageGroup {
	if candidate, found := g.SubGroups[name]; found && candidate.isPool {
		return candidate
	}

	pool := newDamageGroup(name, true)

	if previous, found := g.SubGroups[name]; found {
		pool.SubGroups = map[NameHandle]*DamageGroup{name: previous}
		pool.DamageMetrics = previous.DamageMetrics
	}

	if g.SubGroups == nil {
		g.SubGroups = map[NameHandle]*DamageGroup{}
	}

	g.SubGroups[name] = pool

	return pool
}

func (g *DamageGroup) getSubGroupOrCreateNonPool(name NameHandle) *DamageGroup {
	if existing, found := g.SubGroups[name]; found {
		return existing
	}

	if g.SubGroups == nil {
		g.SubGroups = map[NameHandle]*DamageGroup{}
	}

	created := newDamageGroup(name, false)
	g.SubGroups[name] = created

	return created
}

func (g *DamageGroup) addDamageType(damageType NameHandle, names *NameTracker) {
	if damageType == HandleUnknown {
		return
	}

	if _, present := g.DamageTypes[damageType]; present {
		return
	}

	shieldHandle, haveShield := names.GetHandle(shieldDamageTypeName)

	if haveShield && damageType == shieldHandle && len(g.DamageTypes) > 0 {
		return
	}

	if haveShield && damageType != shieldHandle {
		delete(g.DamageTypes, shieldHandle)
	}

	if g.DamageTypes == nil {
		g.DamageTypes = map[NameHandle]struct{}{}
	}

	g.DamageTypes[damageType] = struct{}{}
}

// recalculate folds all events that arrived since the previous pass into the
// node's cumulative metrics and returns that delta so the caller can fold it
// into its own state. Branch event views are re-materialized into the store;
// leaf vectors are appended to it so every ancestor range covers them.
func (g *DamageGroup) recalculate(store *HitStore, combatDurationSeconds float64, names *NameTracker) damageDelta {
	var delta damageDelta

	if g.isPool {
		// A pool without children yet still needs a valid, empty branch view.
		g.Values = store.TrackGroup(func(store *HitStore) {
			for _, sub := range g.SubGroups {
				delta.add(sub.recalculate(store, combatDurationSeconds, names))
				g.MaxOneHit.Update(sub.MaxOneHit.Name, sub.MaxOneHit.Damage)

				for damageType := range sub.DamageTypes {
					g.addDamageType(damageType, names)
				}
			}
		})
	} else {
		hits := g.Values.Leaf()
		newHits := hits[min(int(g.Hits.All), len(hits)):]
		delta = foldHits(newHits)
		g.MaxOneHit.UpdateFromHits(g.Name, newHits)
		store.AppendLeaf(hits)
	}

	g.DamageMetrics.apply(delta)
	g.DamageMetrics.finalize(combatDurationSeconds)

	return delta
}

// snapshot deep copies the subtree for publication outside the engine
// goroutine. Branch views copy as plain ranges; they resolve only against
// the engine's arena, and snapshots never re-derive metrics.
func (g *DamageGroup) snapshot() *DamageGroup {
	clone := *g
	clone.DamageTypes = maps.Clone(g.DamageTypes)
	clone.Values = g.Values.clone()

	if g.SubGroups != nil {
		clone.SubGroups = make(map[NameHandle]*DamageGroup, len(g.SubGroups))
		for name, sub := range g.SubGroups {
			clone.SubGroups[name] = sub.snapshot()
		}
	}

	return &clone
}

// recalculatePercentages walks top-down once all cumulative totals are
// final. Every node is normalized against its immediate parent; the roots
// are normalized by the caller against the combat's grand totals.
func (g *DamageGroup) recalculatePercentages(parentDamage ShieldHullValues, parentHits ShieldHullCounts) {
	g.DamagePercentage = shieldHullPercentage(g.TotalDamage, parentDamage)
	g.HitsPercentage = shieldHullPercentage(g.Hits.ToValues(), parentHits.ToValues())

	for _, sub := range g.SubGroups {
		sub.recalculatePercentages(g.TotalDamage, g.Hits)
	}
}

// HealGroup is one node of a heal grouping tree, with the same pool/non pool
// mechanics as DamageGroup.
type HealGroup struct {
	Name      NameHandle
	SubGroups map[NameHandle]*HealGroup

	HealMetrics
	HealPercentage  ShieldHullOptionals
	TicksPercentage ShieldHullOptionals

	Values HealTicks

	isPool bool
}

func newHealGroup(name NameHandle, isPool bool) *HealGroup {
	group := &HealGroup{Name: name, isPool: isPool}
	if !isPool {
		group.Values = newLeaf[HealTick]()
	}

	return group
}

func (g *HealGroup) IsPool() bool {
	return g.isPool
}

func (g *HealGroup) AddHeal(path []NameHandle, tick BaseHealTick, offsetMillis uint32) {
	if len(path) == 1 {
		g.getNonPoolSubGroup(path[0]).Values.Push(tick.ToTick(offsetMillis))

		return
	}

	g.getPoolSubGroup(path[len(path)-1]).AddHeal(path[:len(path)-1], tick, offsetMillis)
}

func (g *HealGroup) getNonPoolSubGroup(name NameHandle) *HealGroup {
	candidate := g.getSubGroupOrCreateNonPool(name)
	if !candidate.isPool {
		return candidate
	}

	return candidate.getNonPoolSubGroup(name)
}

func (g *HealGroup) getPoolSubGroup(name NameHandle) *HealGroup {
	if candidate, found := g.SubGroups[name]; found && candidate.isPool {
		return candidate
	}

	pool := newHealGroup(name, true)

	if previous, found := g.SubGroups[name]; found {
		pool.SubGroups = map[NameHandle]*HealGroup{name: previous}
		pool.HealMetrics = previous.HealMetrics
	}

	if g.SubGroups == nil {
		g.SubGroups = map[NameHandle]*HealGroup{}
	}

	g.SubGroups[name] = pool

	return pool
}

func (g *HealGroup) getSubGroupOrCreateNonPool(name NameHandle) *HealGroup {
	if existing, found := g.SubGroups[name]; found {
		return existing
	}

	if g.SubGroups == nil {
		g.SubGroups = map[NameHandle]*HealGroup{}
	}

	created := newHealGroup(name, false)
	g.SubGroups[name] = created

	return created
}

func (g *HealGroup) recalculate(store *HealTickStore, activeDurationSeconds float64) healDelta {
	var delta healDelta

	if g.isPool {
		g.Values = store.TrackGroup(func(store *HealTickStore) {
			for _, sub := range g.SubGroups {
				delta.add(sub.recalculate(store, activeDurationSeconds))
			}
		})
	} else {
		ticks := g.Values.Leaf()
		newTicks := ticks[min(int(g.Ticks.All), len(ticks)):]
		delta = foldTicks(newTicks)
		store.AppendLeaf(ticks)
	}

	g.HealMetrics.apply(delta)
	g.HealMetrics.finalize(activeDurationSeconds)

	return delta
}

func (g *HealGroup) snapshot() *HealGroup {
	clone := *g
	clone.Values = g.Values.clone()

	if g.SubGroups != nil {
		clone.SubGroups = make(map[NameHandle]*HealGroup, len(g.SubGroups))
		for name, sub := range g.SubGroups {
			clone.SubGroups[name] = sub.snapshot()
		}
	}

	return &clone
}

func (g *HealGroup) recalculatePercentages(parentHeal ShieldHullValues, parentTicks ShieldHullCounts) {
	g.HealPercentage = shieldHullPercentage(g.TotalHeal, parentHeal)
	g.TicksPercentage = shieldHullPercentage(g.Ticks.ToValues(), parentTicks.ToValues())

	for _, sub := range g.SubGroups {
		sub.recalculatePercentages(g.TotalHeal, g.Ticks)
	}
}
