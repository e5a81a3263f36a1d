package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameTrackerInsert(t *testing.T) {
	tracker := NewNameTracker()

	alice := tracker.Insert("Alice@alice", NameSource)
	borg := tracker.Insert("Borg Sphere", NameTarget)

	require.NotEqual(t, alice, borg)
	require.Equal(t, alice, tracker.Insert("Alice@alice", NameSource))
	require.Equal(t, "Alice@alice", tracker.Name(alice))
	require.Equal(t, "Borg Sphere", tracker.Name(borg))
	require.Equal(t, 2, tracker.Len())
}

func TestNameTrackerEmptyName(t *testing.T) {
	tracker := NewNameTracker()

	require.Equal(t, HandleUnknown, tracker.Insert("", NameSource))
	require.Equal(t, 0, tracker.Len())
	require.Equal(t, unknownName, tracker.Name(HandleUnknown))
}

func TestNameTrackerFlagAccumulation(t *testing.T) {
	tracker := NewNameTracker()

	handle := tracker.Insert("Phaser Array", NameValue)
	tracker.Insert("Phaser Array", NameDamageType)

	require.True(t, tracker.infos[handle].Flags.Has(NameValue))
	require.True(t, tracker.infos[handle].Flags.Has(NameDamageType))
	require.False(t, tracker.infos[handle].Flags.Has(NamePlayer))
}

func TestNameTrackerUnknownLookupsPanic(t *testing.T) {
	tracker := NewNameTracker()

	require.Panics(t, func() { tracker.Name(NameHandle(42)) })
	require.Panics(t, func() { tracker.Handle("never inserted") })

	_, found := tracker.GetHandle("never inserted")
	require.False(t, found)

	_, found = tracker.GetName(NameHandle(42))
	require.False(t, found)
}

func TestNamesByFlags(t *testing.T) {
	tracker := NewNameTracker()
	tracker.Insert("Alice@alice", NameSource|NamePlayer)
	tracker.Insert("Borg Sphere", NameSource)
	tracker.Insert("Borg Cube", NameTarget)

	var sources []string

	tracker.NamesByFlags(NameSource, func(name string) bool {
		sources = append(sources, name)

		return true
	})

	require.Equal(t, []string{"Alice@alice", "Borg Sphere"}, sources)

	require.True(t, tracker.anyNameMatches(NameTarget, func(name string) bool {
		return name == "Borg Cube"
	}))
	require.False(t, tracker.anyNameMatches(NamePlayer, func(name string) bool {
		return name == "Borg Cube"
	}))
}
