// Package analyzer implements the incremental combat log analysis engine:
// parsing the game client's line oriented combat log into typed records,
// splitting the record stream into combats by inactivity gaps, and
// accumulating per participant damage and heal statistics in dynamically
// shaped grouping trees.
package analyzer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrEndOfLog signals that all currently appended data has been consumed.
// This is the normal end of an update pass, not a failure.
var ErrEndOfLog = errors.New("end of combat log reached")

var ErrOpenLog = errors.New("failed to open combat log")

// InvalidRecordError is returned for a line that does not parse as a combat
// log record. The caller is expected to log it and continue with the next
// line.
type InvalidRecordError struct {
	Line string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid combat log record: %s", strings.TrimRight(e.Line, "\r\n"))
}

// timeLayout covers the two digit year timestamp header, e.g.
// "23:01:07:10:12:56.30". Fractional seconds are accepted implicitly.
const timeLayout = "06:01:02:15:04:05"

// Entity id blocks look like "P[12793028@5473940 Ayel@greyblizzard]" for
// players, "C[25 Mission_Space_Borg_Queen_Diamond]" for non player entities
// and "S[12 ...]" for non player characters such as ground NPCs.
var rxEntityID = regexp.MustCompile(`(?P<type>P|C|S)\[(?P<id>\d+)(@(?P<playerID>\d+))?(\s+(?P<uniqueName>[^\]]+))?\]`)

type EntityKind int

const (
	EntityNone EntityKind = iota
	EntityPlayer
	EntityNonPlayer
	EntityNonPlayerCharacter
)

// Entity identifies one participant slot of a record. The zero value is the
// absent entity.
type Entity struct {
	Kind EntityKind
	// Name is the display name. For players this is the full
	// "Character@account" name, which is also the stable participant key.
	Name string
	// UniqueName is the internal unique name of non player entities.
	UniqueName string
	ID         uint64
	// PlayerID is only set for player entities.
	PlayerID uint64
}

func (e Entity) IsPlayer() bool {
	return e.Kind == EntityPlayer
}

func (e Entity) IsNone() bool {
	return e.Kind == EntityNone
}

func parseEntity(name string, idBlock string) (Entity, bool) {
	if name == "" && (idBlock == "" || idBlock == "*") {
		return Entity{}, true
	}

	match := rxEntityID.FindStringSubmatch(idBlock)
	if match == nil {
		return Entity{}, false
	}

	var (
		entityType = match[rxEntityID.SubexpIndex("type")]
		rawID      = match[rxEntityID.SubexpIndex("id")]
		playerID   = match[rxEntityID.SubexpIndex("playerID")]
		uniqueName = match[rxEntityID.SubexpIndex("uniqueName")]
	)

	id, errID := strconv.ParseUint(rawID, 10, 64)
	if errID != nil {
		return Entity{}, false
	}

	switch entityType {
	case "P":
		if playerID == "" || uniqueName == "" {
			return Entity{}, false
		}

		pid, errPID := strconv.ParseUint(playerID, 10, 64)
		if errPID != nil {
			return Entity{}, false
		}

		return Entity{
			Kind:       EntityPlayer,
			Name:       uniqueName,
			UniqueName: uniqueName,
			ID:         id,
			PlayerID:   pid,
		}, true
	case "C":
		return Entity{
			Kind:       EntityNonPlayer,
			Name:       name,
			UniqueName: uniqueName,
			ID:         id,
		}, true
	case "S":
		return Entity{Kind: EntityNonPlayerCharacter, Name: name, ID: id}, true
	default:
		return Entity{}, false
	}
}

type ValueKind int

const (
	ValueDamage ValueKind = iota
	ValueHeal
)

// RecordValue is the classified numeric payload of a record: either a damage
// hit or a heal tick.
type RecordValue struct {
	Kind ValueKind
	Hit  BaseHit
	Tick BaseHealTick
}

func (v RecordValue) IsDamage() bool {
	return v.Kind == ValueDamage
}

// IsAllZero reports whether the value carries no statistical weight. Such
// records still update combat metadata but are not routed to any grouping
// tree.
func (v RecordValue) IsAllZero() bool {
	if v.Kind == ValueHeal {
		return v.Tick.Amount == 0
	}

	return v.Hit.Damage == 0 && v.Hit.PreventedToHull == 0 && v.Hit.BaseDamage == 0
}

// classifyValue reproduces the game's value semantics. The amount sign is
// only used for classification; stored amounts are always absolute.
//
//   - value type "HitPoints" with a negative amount is a heal to hull.
//   - value type "Shield" with preModifiers == 0 and no ShieldBreak flag is a
//     heal to shield (negative amount) or a shield drain (positive amount).
//     Every other shield record is shield damage, with preModifiers holding
//     the damage that the shield prevented from reaching the hull.
//   - anything else is hull damage, with preModifiers holding the base
//     damage before mitigation (falling back to the amount itself).
func classifyValue(valueType string, amount string, preModifiers string, flags ValueFlags) (RecordValue, bool) {
	value1, errValue1 := strconv.ParseFloat(amount, 64)
	if errValue1 != nil {
		return RecordValue{}, false
	}

	value2, errValue2 := strconv.ParseFloat(preModifiers, 64)
	if errValue2 != nil {
		return RecordValue{}, false
	}

	if value1 < 0 && valueType == "HitPoints" {
		return healValue(hullHealTick(value1, flags)), true
	}

	if valueType == "Shield" {
		if value2 == 0 && !flags.Has(FlagShieldBreak) {
			if value1 < 0 {
				return healValue(shieldHealTick(value1, flags)), true
			}

			if value1 > 0 {
				return damageValue(shieldDrainHit(value1, flags)), true
			}
		}

		return damageValue(shieldHit(value1, flags, value2)), true
	}

	if value2 == 0 {
		return damageValue(hullHit(value1, flags, value1)), true
	}

	return damageValue(hullHit(value1, flags, value2)), true
}

func damageValue(hit BaseHit) RecordValue {
	return RecordValue{Kind: ValueDamage, Hit: hit}
}

func healValue(tick BaseHealTick) RecordValue {
	return RecordValue{Kind: ValueHeal, Tick: tick}
}

// Record is one parsed combat log line.
type Record struct {
	Time      time.Time
	Source    Entity
	SubSource Entity
	Target    Entity
	ValueName string
	ValueType string
	Flags     ValueFlags
	Value     RecordValue
	Raw       string
	// LogStart and LogEnd are the byte offsets of the line within the log
	// file, used to track a combat's raw log range for export.
	LogStart int64
	LogEnd   int64
}

// IsPlayerOutDamage reports whether the record is damage caused directly by
// a player. Only those records advance the damage-centric combat time.
func (r *Record) IsPlayerOutDamage() bool {
	return r.Source.IsPlayer() && r.Value.IsDamage()
}

// IsDirectSelfDamage reports damage with neither a target nor a sub source,
// e.g. warp core breach self damage. It is excluded from outgoing trees.
func (r *Record) IsDirectSelfDamage() bool {
	return r.Value.IsDamage() && r.Target.IsNone() && r.SubSource.IsNone()
}

// recordFieldCount is the number of comma separated fields of a record line.
const recordFieldCount = 12

// Parser reads one combat log line at a time. The file is opened read-only
// and non exclusive so the game client can keep appending while we read.
type Parser struct {
	file   *os.File
	reader *bufio.Reader
	pos    int64
}

const readBufferSize = 1 << 20

// NewParser opens the combat log for reading, optionally starting at a byte
// offset for replay. A missing or unreadable file fails here, at engine
// construction time.
func NewParser(path string, startOffset int64) (*Parser, error) {
	file, errOpen := os.Open(path)
	if errOpen != nil {
		return nil, errors.Join(errOpen, ErrOpenLog)
	}

	if startOffset > 0 {
		if _, errSeek := file.Seek(startOffset, io.SeekStart); errSeek != nil {
			_ = file.Close()

			return nil, errors.Join(errSeek, ErrOpenLog)
		}
	}

	return &Parser{
		file:   file,
		reader: bufio.NewReaderSize(file, readBufferSize),
		pos:    startOffset,
	}, nil
}

// Pos is the byte offset of the next unread line.
func (p *Parser) Pos() int64 {
	return p.pos
}

func (p *Parser) Close() error {
	return p.file.Close()
}

// ParseNext consumes exactly one line. It returns ErrEndOfLog once all
// appended data has been read and an *InvalidRecordError for a line that
// does not match the record grammar.
func (p *Parser) ParseNext() (Record, error) {
	line, errRead := p.reader.ReadString('\n')
	if len(line) == 0 {
		return Record{}, ErrEndOfLog
	}

	if errRead != nil && !errors.Is(errRead, io.EOF) {
		return Record{}, ErrEndOfLog
	}

	start := p.pos
	p.pos += int64(len(line))

	record, valid := parseLine(line, start, p.pos)
	if !valid {
		return Record{}, &InvalidRecordError{Line: line}
	}

	return record, nil
}

func parseLine(line string, logStart int64, logEnd int64) (Record, bool) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) < recordFieldCount {
		return Record{}, false
	}

	header := strings.SplitN(strings.TrimSpace(fields[0]), "::", 2)
	if len(header) != 2 {
		return Record{}, false
	}

	timestamp, errTime := time.Parse(timeLayout, header[0])
	if errTime != nil {
		return Record{}, false
	}

	source, sourceOK := parseEntity(header[1], strings.TrimSpace(fields[1]))
	subSource, subOK := parseEntity(strings.TrimSpace(fields[2]), strings.TrimSpace(fields[3]))
	target, targetOK := parseEntity(strings.TrimSpace(fields[4]), strings.TrimSpace(fields[5]))

	if !sourceOK || !subOK || !targetOK {
		return Record{}, false
	}

	// fields[7] is an opaque ability id (e.g. "Pn.Rfd0cd") with no known use.
	var (
		valueName = strings.TrimSpace(fields[6])
		valueType = strings.TrimSpace(fields[8])
		flags     = ParseValueFlags(strings.TrimSpace(fields[9]))
	)

	value, valueOK := classifyValue(valueType, strings.TrimSpace(fields[10]), strings.TrimSpace(fields[11]), flags)
	if !valueOK {
		return Record{}, false
	}

	return Record{
		Time:      timestamp,
		Source:    source,
		SubSource: subSource,
		Target:    target,
		ValueName: valueName,
		ValueType: valueType,
		Flags:     flags,
		Value:     value,
		Raw:       line,
		LogStart:  logStart,
		LogEnd:    logEnd,
	}, true
}
