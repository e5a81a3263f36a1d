package analyzer

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// NameHandle is a small stable identifier for an interned entity, ability or
// damage type name. Handles are only meaningful together with the
// NameTracker that issued them.
type NameHandle uint32

// HandleUnknown is the sentinel handle for an absent or empty name.
const HandleUnknown = NameHandle(math.MaxUint32)

const unknownName = "<unknown>"

// NameFlags records in which roles a name has been seen. The flag set of a
// name only ever grows; every re-insertion ORs the new roles in.
type NameFlags uint16

const (
	NameSource NameFlags = 1 << iota
	NameSourceUnique
	NameIndirectSource
	NameIndirectSourceUnique
	NameTarget
	NameTargetUnique
	NameValue
	NameDamageType
	NamePlayer
)

func (f NameFlags) Has(other NameFlags) bool {
	return f&other != 0
}

type NameInfo struct {
	Name  string
	Flags NameFlags
}

// NameTracker interns name strings to sequential handles. It is owned by a
// single Combat and never shared between goroutines.
type NameTracker struct {
	infos   []NameInfo
	handles map[string]NameHandle
}

func NewNameTracker() *NameTracker {
	return &NameTracker{handles: map[string]NameHandle{}}
}

// Insert returns the handle for name, issuing a new sequential handle the
// first time a non-empty name is seen. The empty string always maps to
// HandleUnknown without allocating.
func (t *NameTracker) Insert(name string, flags NameFlags) NameHandle {
	if name == "" {
		return HandleUnknown
	}

	if handle, found := t.handles[name]; found {
		t.infos[handle].Flags |= flags

		return handle
	}

	handle := NameHandle(len(t.infos))
	t.infos = append(t.infos, NameInfo{Name: name, Flags: flags})
	t.handles[name] = handle

	return handle
}

// Name resolves a handle back to its string. Calling it with a handle that
// was never issued by this tracker is a programming error and panics.
func (t *NameTracker) Name(handle NameHandle) string {
	if handle == HandleUnknown {
		return unknownName
	}

	if int(handle) >= len(t.infos) {
		panic(fmt.Sprintf("name lookup for handle %d that was never issued", handle))
	}

	return t.infos[handle].Name
}

// GetName is the fallible variant of Name.
func (t *NameTracker) GetName(handle NameHandle) (string, bool) {
	if handle == HandleUnknown {
		return unknownName, true
	}

	if int(handle) >= len(t.infos) {
		return "", false
	}

	return t.infos[handle].Name, true
}

// Handle resolves a previously interned name to its handle. Calling it with
// a name that was never inserted is a programming error and panics.
func (t *NameTracker) Handle(name string) NameHandle {
	if name == "" {
		return HandleUnknown
	}

	handle, found := t.handles[name]
	if !found {
		panic(fmt.Sprintf("handle lookup for name %q that was never inserted", name))
	}

	return handle
}

// GetHandle is the fallible variant of Handle.
func (t *NameTracker) GetHandle(name string) (NameHandle, bool) {
	if name == "" {
		return HandleUnknown, true
	}

	handle, found := t.handles[name]

	return handle, found
}

// Clone returns an independent copy. Issued handles resolve identically in
// both trackers.
func (t *NameTracker) Clone() *NameTracker {
	return &NameTracker{
		infos:   slices.Clone(t.infos),
		handles: maps.Clone(t.handles),
	}
}

func (t *NameTracker) Len() int {
	return len(t.infos)
}

// NamesByFlags visits every interned name whose flag set intersects mask.
func (t *NameTracker) NamesByFlags(mask NameFlags, visit func(name string) bool) {
	for i := range t.infos {
		if !t.infos[i].Flags.Has(mask) {
			continue
		}

		if !visit(t.infos[i].Name) {
			return
		}
	}
}

func (t *NameTracker) anyNameMatches(mask NameFlags, match func(name string) bool) bool {
	matched := false

	t.NamesByFlags(mask, func(name string) bool {
		if match(name) {
			matched = true

			return false
		}

		return true
	})

	return matched
}
