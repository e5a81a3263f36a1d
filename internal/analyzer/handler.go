package analyzer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfsblu/stoca/pkg/log"
)

// instructionKind enumerates what the handler loop can be asked to do.
type instructionKind int

const (
	instructionRefresh instructionKind = iota
	instructionReplaceSettings
	instructionFetchCombat
)

type instruction struct {
	kind        instructionKind
	settings    Settings
	combatIndex int
}

// Refreshed is published on the info channel after every successful update
// pass.
type Refreshed struct {
	// Combats are deep copies of all combats segmented so far, oldest
	// first. Consumers own them; the engine keeps mutating its own
	// instances on later passes.
	Combats []*Combat
	// Identifiers parallels Combats for cheap list display.
	Identifiers []string
}

// Handler owns one Analyzer on a dedicated goroutine and exposes a
// channel-based interface for interactive consumers. Refresh requests
// arriving while an update pass is running are coalesced into one.
type Handler struct {
	instructions chan instruction
	info         chan Refreshed
	combatInfo   chan *Combat

	refreshRate time.Duration
	busy        atomic.Bool

	settingsMu sync.Mutex
	settings   Settings
}

func NewHandler(settings Settings, refreshRate time.Duration) *Handler {
	return &Handler{
		instructions: make(chan instruction, 1),
		info:         make(chan Refreshed, 1),
		combatInfo:   make(chan *Combat, 1),
		refreshRate:  refreshRate,
		settings:     settings,
	}
}

// CombatInfo delivers the results of FetchCombat requests.
func (h *Handler) CombatInfo() <-chan *Combat {
	return h.combatInfo
}

// FetchCombat asks for a single combat by index; nil is delivered on
// CombatInfo when the index does not exist yet.
func (h *Handler) FetchCombat(index int) {
	h.instructions <- instruction{kind: instructionFetchCombat, combatIndex: index}
}

// Info is the stream of refresh results. The channel holds at most the
// latest result; a slow consumer only ever sees the newest state.
func (h *Handler) Info() <-chan Refreshed {
	return h.info
}

// Refresh requests an update pass. Returns false when one is already
// pending, which makes bursts of file events collapse into a single pass.
func (h *Handler) Refresh() bool {
	if h.busy.Load() {
		return false
	}

	select {
	case h.instructions <- instruction{kind: instructionRefresh}:
		return true
	default:
		return false
	}
}

// ReplaceSettings discards the running engine and starts over with new
// settings on the next loop iteration.
func (h *Handler) ReplaceSettings(settings Settings) {
	h.instructions <- instruction{kind: instructionReplaceSettings, settings: settings}
}

func (h *Handler) currentSettings() Settings {
	h.settingsMu.Lock()
	defer h.settingsMu.Unlock()

	return h.settings
}

func (h *Handler) replaceSettings(settings Settings) {
	h.settingsMu.Lock()
	defer h.settingsMu.Unlock()

	h.settings = settings
}

// Start runs the handler loop until ctx is cancelled. It creates the engine
// lazily so a missing log file is reported on every refresh attempt instead
// of killing the loop.
func (h *Handler) Start(ctx context.Context) {
	var engine *Analyzer

	defer func() {
		if engine != nil {
			_ = engine.Close()
		}
	}()

	go func() {
		h.Refresh()
	}()

	refreshTimer := time.NewTicker(h.refreshRate)
	defer refreshTimer.Stop()

	for {
		select {
		case inst := <-h.instructions:
			switch inst.kind {
			case instructionReplaceSettings:
				h.replaceSettings(inst.settings)

				if engine != nil {
					_ = engine.Close()
					engine = nil
				}
			case instructionRefresh:
				engine = h.refresh(engine)
			case instructionFetchCombat:
				h.fetchCombat(engine, inst.combatIndex)
			}
		case <-refreshTimer.C:
			h.Refresh()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) fetchCombat(engine *Analyzer, index int) {
	var combat *Combat

	if engine != nil {
		if combats := engine.Combats(); index >= 0 && index < len(combats) {
			combat = combats[index].Snapshot()
		}
	}

	select {
	case <-h.combatInfo:
	default:
	}

	h.combatInfo <- combat
}

func (h *Handler) refresh(engine *Analyzer) *Analyzer {
	h.busy.Store(true)
	defer h.busy.Store(false)

	if engine == nil {
		created, errNew := New(h.currentSettings())
		if errNew != nil {
			slog.Error("Failed to open combat log", log.ErrAttr(errNew))

			return nil
		}

		engine = created
	}

	if errUpdate := engine.Update(); errUpdate != nil {
		slog.Error("Failed to update combat log analysis", log.ErrAttr(errUpdate))

		return engine
	}

	combats := engine.Combats()
	snapshots := make([]*Combat, 0, len(combats))
	identifiers := make([]string, 0, len(combats))

	for _, combat := range combats {
		snapshots = append(snapshots, combat.Snapshot())
		identifiers = append(identifiers, combat.Identifier())
	}

	// Drop a stale unread result so the newest one always fits.
	select {
	case <-h.info:
	default:
	}

	h.info <- Refreshed{Combats: snapshots, Identifiers: identifiers}

	return engine
}
