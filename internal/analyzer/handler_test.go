package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitRefreshed(t *testing.T, handler *Handler) Refreshed {
	t.Helper()

	select {
	case info := <-handler.Info():
		return info
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for refresh result")

		return Refreshed{}
	}
}

func TestHandlerRefresh(t *testing.T) {
	path := writeLog(t, firstCombatLines()...)

	handler := NewHandler(Settings{CombatlogFile: path}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handler.Start(ctx)

	info := waitRefreshed(t, handler)
	require.Len(t, info.Combats, 1)
	require.Len(t, info.Identifiers, 1)

	// New data becomes visible on the next requested refresh.
	appendLog(t, path,
		testLine(15+100, `Alice,P[100@200 Alice@alice],,*,Alice,P[100@200 Alice@alice],Hazard Emitters,Pn.D1,HitPoints,,-500,0`))

	require.Eventually(t, func() bool {
		return handler.Refresh()
	}, 5*time.Second, 10*time.Millisecond)

	info = waitRefreshed(t, handler)
	require.Len(t, info.Combats, 2)
}

func TestHandlerPublishesSnapshots(t *testing.T) {
	path := writeLog(t, firstCombatLines()...)

	handler := NewHandler(Settings{CombatlogFile: path}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handler.Start(ctx)

	info := waitRefreshed(t, handler)
	require.Len(t, info.Combats, 1)

	// A held result must not change under a later refresh.
	held := info.Combats[0]
	totalBefore := held.TotalDamageOut.All

	appendLog(t, path,
		testLine(20, `Alice,P[100@200 Alice@alice],,*,Borg Sphere,C[10 Space_Borg_Sphere],Phaser Array,Pn.A1,Phaser,,500,600`))

	require.Eventually(t, func() bool {
		return handler.Refresh()
	}, 5*time.Second, 10*time.Millisecond)

	info = waitRefreshed(t, handler)
	require.NotSame(t, held, info.Combats[0])
	require.Greater(t, info.Combats[0].TotalDamageOut.All, totalBefore)
	require.InDelta(t, totalBefore, held.TotalDamageOut.All, 0.001)
}

func TestHandlerFetchCombat(t *testing.T) {
	path := writeLog(t, firstCombatLines()...)

	handler := NewHandler(Settings{CombatlogFile: path}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handler.Start(ctx)

	waitRefreshed(t, handler)

	handler.FetchCombat(0)

	select {
	case combat := <-handler.CombatInfo():
		require.NotNil(t, combat)
		require.Len(t, combat.Players, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for combat")
	}

	handler.FetchCombat(99)

	select {
	case combat := <-handler.CombatInfo():
		require.Nil(t, combat)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for combat")
	}
}

func TestHandlerReplaceSettings(t *testing.T) {
	first := writeLog(t, firstCombatLines()...)
	second := writeLog(t,
		testLine(0, `Alice,P[100@200 Alice@alice],,*,Alice,P[100@200 Alice@alice],Hazard Emitters,Pn.D1,HitPoints,,-500,0`))

	handler := NewHandler(Settings{CombatlogFile: first}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handler.Start(ctx)

	info := waitRefreshed(t, handler)
	require.Len(t, info.Combats, 1)
	require.Len(t, info.Combats[0].Players, 2)

	handler.ReplaceSettings(Settings{CombatlogFile: second})

	require.Eventually(t, func() bool {
		return handler.Refresh()
	}, 5*time.Second, 10*time.Millisecond)

	info = waitRefreshed(t, handler)
	require.Len(t, info.Combats, 1)
	require.Len(t, info.Combats[0].Players, 1)
}
