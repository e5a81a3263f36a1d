package analyzer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Analyzer is the incremental engine: it tails one combat log file and keeps
// a list of fully analyzed combats that grows as the game client appends.
// All methods must be called from a single goroutine; Handler provides the
// concurrent wrapper.
type Analyzer struct {
	parser   *Parser
	settings Settings

	combats []*Combat

	// hits and ticks are the shared arenas backing all branch node event
	// views. They are rebuilt on every update pass.
	hits  HitStore
	ticks HealTickStore

	// firstModified is the index of the oldest combat touched since the
	// last recomputation, or -1 when nothing is pending.
	firstModified int

	log *slog.Logger
}

// New opens the configured combat log and returns an engine positioned at
// the configured start offset. A log file that cannot be opened fails here.
func New(settings Settings) (*Analyzer, error) {
	parser, errParser := NewParser(settings.CombatlogFile, settings.StartOffset)
	if errParser != nil {
		return nil, errParser
	}

	return &Analyzer{
		parser:        parser,
		settings:      settings,
		firstModified: -1,
		log:           slog.With(slog.String("module", "analyzer")),
	}, nil
}

func (a *Analyzer) Close() error {
	return a.parser.Close()
}

// Settings returns the configuration the engine was created with.
func (a *Analyzer) Settings() Settings {
	return a.settings
}

// Pos is the byte offset up to which the log has been consumed.
func (a *Analyzer) Pos() int64 {
	return a.parser.Pos()
}

// Combats returns all combats segmented so far, oldest first. The slice and
// the combats stay owned by the engine.
func (a *Analyzer) Combats() []*Combat {
	return a.combats
}

// Latest returns the newest combat, or nil before the first record.
func (a *Analyzer) Latest() *Combat {
	if len(a.combats) == 0 {
		return nil
	}

	return a.combats[len(a.combats)-1]
}

// Update consumes every line appended since the previous call and then
// recomputes all combats that received new records. Invalid lines are
// logged and skipped. Returns once the current end of the log is reached.
func (a *Analyzer) Update() error {
	for {
		record, errParse := a.parser.ParseNext()
		if errParse != nil {
			if errors.Is(errParse, ErrEndOfLog) {
				break
			}

			var invalid *InvalidRecordError
			if errors.As(errParse, &invalid) {
				a.log.Warn("skipping invalid combat log line",
					slog.String("line", strings.TrimSpace(invalid.Line)))

				continue
			}

			return errParse
		}

		a.processRecord(&record)
	}

	if a.firstModified < 0 {
		return nil
	}

	// Rebuilding the arenas invalidates the branch views of all older
	// combats, but those are final; their metrics are never derived again.
	a.hits.Reset()
	a.ticks.Reset()

	for _, combat := range a.combats[a.firstModified:] {
		combat.recalculate(&a.hits, &a.ticks, a.settings.CombatNameRules)
	}

	a.firstModified = -1

	return nil
}

func (a *Analyzer) processRecord(record *Record) {
	combat := a.currentCombat(record)
	combat.updateMetaData(record)

	if record.Value.IsAllZero() {
		return
	}

	offset := combat.offsetMillis(record.Time)

	if record.Source.IsPlayer() && !record.IsDirectSelfDamage() {
		a.addOutValue(combat, record.Source.Name, record, offset)
	}

	// A record can land on two players at once: the target, and a player
	// sub source hit through a non player source entity. The latter shape
	// is how the log reports some boss abilities landing on players.
	if record.Target.IsPlayer() {
		a.addInValue(combat, record.Target.Name, record, offset)
	}

	if record.SubSource.IsPlayer() && !record.Source.IsPlayer() && !record.Source.IsNone() {
		a.addInValue(combat, record.SubSource.Name, record, offset)
	}
}

// currentCombat returns the combat the record belongs to, starting a new
// one after an inactivity gap longer than the configured separation.
func (a *Analyzer) currentCombat(record *Record) *Combat {
	if len(a.combats) > 0 {
		latest := a.combats[len(a.combats)-1]
		if record.Time.Sub(latest.ActiveTime.End) <= a.settings.separation() {
			a.markModified(len(a.combats) - 1)

			return latest
		}
	}

	combat := newCombat(record)
	a.combats = append(a.combats, combat)
	a.markModified(len(a.combats) - 1)

	return combat
}

func (a *Analyzer) markModified(index int) {
	if a.firstModified < 0 || index < a.firstModified {
		a.firstModified = index
	}
}

func (a *Analyzer) addOutValue(combat *Combat, playerName string, record *Record, offset uint32) {
	player := combat.getPlayer(playerName)
	player.extendActiveTime(record.Time)

	path := a.outGroupingPath(combat, record)

	if record.Value.IsDamage() {
		player.extendCombatTime(record.Time)
		damageType := combat.Names.Insert(record.ValueType, NameDamageType)
		player.DamageOut.AddDamage(path, record.Value.Hit, damageType, offset, combat.Names)

		if record.Flags.Has(FlagKill) {
			player.Kills++
		}

		return
	}

	player.HealOut.AddHeal(path, record.Value.Tick, offset)
}

func (a *Analyzer) addInValue(combat *Combat, playerName string, record *Record, offset uint32) {
	player := combat.getPlayer(playerName)
	player.extendActiveTime(record.Time)

	path := a.inGroupingPath(combat, playerName, record)

	if record.Value.IsDamage() {
		damageType := combat.Names.Insert(record.ValueType, NameDamageType)
		player.DamageIn.AddDamage(path, record.Value.Hit, damageType, offset, combat.Names)

		if record.Flags.Has(FlagKill) {
			player.Deaths++
		}

		return
	}

	player.HealIn.AddHeal(path, record.Value.Tick, offset)
}

// outGroupingPath builds the grouping path for an outgoing value. The path
// is consumed from its last element inwards, so the leaf ability name comes
// first and every added grouping level is appended after it.
//
// With a pet or summon sub source the ability groups under the pet by
// default; a matching reversal rule swaps the two so that all of a summon
// ability's pets group under the ability instead. A matching custom group
// rule wraps the whole path in one extra level named after the rule.
func (a *Analyzer) outGroupingPath(combat *Combat, record *Record) []NameHandle {
	value := combat.Names.Insert(record.ValueName, NameValue)
	path := []NameHandle{value}

	if !record.SubSource.IsNone() || record.Target.IsNone() {
		sub := combat.Names.Insert(record.SubSource.Name, NameIndirectSource)

		if a.matchesReversalRule(record) {
			path = []NameHandle{sub, value}
		} else {
			path = []NameHandle{value, sub}
		}
	}

	return a.applyCustomGroupRules(combat, record, path)
}

// inGroupingPath groups incoming values under the attacking entity.
func (a *Analyzer) inGroupingPath(combat *Combat, playerName string, record *Record) []NameHandle {
	value := combat.Names.Insert(record.ValueName, NameValue)

	attacker := record.Source.Name
	if attacker == "" || attacker == playerName {
		return a.applyCustomGroupRules(combat, record, []NameHandle{value})
	}

	source := combat.Names.Insert(attacker, NameSource)

	return a.applyCustomGroupRules(combat, record, []NameHandle{value, source})
}

func (a *Analyzer) matchesReversalRule(record *Record) bool {
	for _, rule := range a.settings.GroupingReversalRules {
		if rule.MatchesRecord(record) {
			return true
		}
	}

	return false
}

func (a *Analyzer) applyCustomGroupRules(combat *Combat, record *Record, path []NameHandle) []NameHandle {
	for _, rule := range a.settings.CustomGroupRules {
		if rule.MatchesRecord(record) {
			return append(path, combat.Names.Insert(rule.Name, NameFlags(0)))
		}
	}

	return path
}

// ExtractCombat copies a combat's raw byte range from the log file. The
// file is opened separately so extraction never disturbs the tail position
// of the engine's own reader.
func (a *Analyzer) ExtractCombat(writer io.Writer, combat *Combat) error {
	file, errOpen := os.Open(a.settings.CombatlogFile)
	if errOpen != nil {
		return errors.Join(errOpen, ErrOpenLog)
	}

	defer func() {
		_ = file.Close()
	}()

	if _, errSeek := file.Seek(combat.LogStart, io.SeekStart); errSeek != nil {
		return fmt.Errorf("failed to seek to combat start: %w", errSeek)
	}

	if _, errCopy := io.CopyN(writer, file, combat.LogEnd-combat.LogStart); errCopy != nil {
		return fmt.Errorf("failed to copy combat log range: %w", errCopy)
	}

	return nil
}
