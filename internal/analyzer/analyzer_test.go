package analyzer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	alice = "Alice@alice"
	bob   = "Bob@bob"
)

// testLine renders one record line at an offset in seconds.
func testLine(seconds int, body string) string {
	return fmt.Sprintf("24:02:10:12:%02d:%02d::%s\n", seconds/60, seconds%60, body)
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "combatlog.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "")), 0o600))

	return path
}

func appendLog(t *testing.T, path string, lines ...string) {
	t.Helper()

	file, errOpen := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, errOpen)

	_, errWrite := file.WriteString(strings.Join(lines, ""))
	require.NoError(t, errWrite)
	require.NoError(t, file.Close())
}

func firstCombatLines() []string {
	return []string{
		testLine(0, `Alice,P[100@200 Alice@alice],,*,Borg Sphere,C[10 Space_Borg_Sphere],Phaser Array,Pn.A1,Phaser,,1000,1200`),
		testLine(5, `Borg Sphere,C[10 Space_Borg_Sphere],,*,Alice,P[100@200 Alice@alice],Plasma Array,Pn.B1,Shield,,-80,-100`),
		testLine(10, `Bob,P[101@201 Bob@bob],,*,Borg Sphere,C[10 Space_Borg_Sphere],Photon Torpedo,Pn.C1,Kinetic,Critical|Kill,2000,2500`),
		testLine(15, `Borg Sphere,C[10 Space_Borg_Sphere],,*,Bob,P[101@201 Bob@bob],Plasma Torpedo,Pn.E1,Kinetic,Kill,5000,6000`),
	}
}

func newTestAnalyzer(t *testing.T, path string) *Analyzer {
	t.Helper()

	engine, errNew := New(Settings{CombatlogFile: path})
	require.NoError(t, errNew)

	t.Cleanup(func() { _ = engine.Close() })

	return engine
}

func TestAnalyzerSingleCombat(t *testing.T) {
	path := writeLog(t, firstCombatLines()...)
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())
	require.Len(t, engine.Combats(), 1)

	combat := engine.Latest()
	require.Len(t, combat.Players, 2)

	alicePlayer := combat.Players[alice]
	require.NotNil(t, alicePlayer)
	require.InDelta(t, 1000, alicePlayer.DamageOut.TotalDamage.All, 0.001)
	require.InDelta(t, 80, alicePlayer.DamageIn.TotalDamage.Shield, 0.001)

	bobPlayer := combat.Players[bob]
	require.NotNil(t, bobPlayer)
	require.InDelta(t, 2000, bobPlayer.DamageOut.TotalDamage.All, 0.001)
	require.Equal(t, uint64(1), bobPlayer.DamageOut.Crits)
	require.Equal(t, uint64(1), bobPlayer.Kills)
	require.Equal(t, uint64(1), bobPlayer.Deaths)
	require.InDelta(t, 5000, bobPlayer.DamageIn.TotalDamage.All, 0.001)

	require.InDelta(t, 3000, combat.TotalDamageOut.All, 0.001)
	require.InDelta(t, 5080, combat.TotalDamageIn.All, 0.001)
	require.Equal(t, uint64(1), combat.TotalKills)
	require.Equal(t, uint64(1), combat.TotalDeaths)

	// Player shares are normalized against the combat totals.
	require.InDelta(t, 100.0/3, alicePlayer.DamageOut.DamagePercentage.All.Value, 0.001)
	require.InDelta(t, 200.0/3, bobPlayer.DamageOut.DamagePercentage.All.Value, 0.001)

	// Damage driven combat time spans the two player hits.
	require.NotNil(t, combat.CombatTime)
	require.InDelta(t, 10, combat.CombatTime.Seconds(), 0.001)
	require.InDelta(t, 15, combat.ActiveTime.Seconds(), 0.001)
}

func TestAnalyzerCombatSeparation(t *testing.T) {
	lines := firstCombatLines()
	lines = append(lines,
		testLine(15+100, `Alice,P[100@200 Alice@alice],,*,Alice,P[100@200 Alice@alice],Hazard Emitters,Pn.D1,HitPoints,,-500,0`))

	path := writeLog(t, lines...)
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())
	require.Len(t, engine.Combats(), 2)

	healCombat := engine.Latest()
	alicePlayer := healCombat.Players[alice]
	require.NotNil(t, alicePlayer)
	require.InDelta(t, 500, alicePlayer.HealOut.TotalHeal.Hull, 0.001)
	require.InDelta(t, 500, alicePlayer.HealIn.TotalHeal.Hull, 0.001)
	require.InDelta(t, 0, alicePlayer.DamageOut.TotalDamage.All, 0.001)
}

func TestAnalyzerIncrementalMatchesFromScratch(t *testing.T) {
	path := writeLog(t, firstCombatLines()...)
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	extra := []string{
		testLine(20, `Alice,P[100@200 Alice@alice],,*,Borg Sphere,C[10 Space_Borg_Sphere],Phaser Array,Pn.A1,Phaser,Critical,500,600`),
		testLine(25, `Bob,P[101@201 Bob@bob],Photon Torpedo,C[20 Pet_Torp],Borg Sphere,C[10 Space_Borg_Sphere],Torpedo Spread,Pn.F1,Kinetic,,750,800`),
	}

	appendLog(t, path, extra...)
	require.NoError(t, engine.Update())

	fresh := newTestAnalyzer(t, path)
	require.NoError(t, fresh.Update())

	require.Len(t, engine.Combats(), 1)
	require.Len(t, fresh.Combats(), 1)

	incremental := engine.Latest()
	scratch := fresh.Latest()

	for _, name := range []string{alice, bob} {
		left := incremental.Players[name]
		right := scratch.Players[name]
		require.NotNil(t, left)
		require.NotNil(t, right)

		require.InDelta(t, right.DamageOut.TotalDamage.All, left.DamageOut.TotalDamage.All, 0.001)
		require.Equal(t, right.DamageOut.Hits, left.DamageOut.Hits)
		require.Equal(t, right.DamageOut.Crits, left.DamageOut.Crits)
		require.InDelta(t, right.DamageOut.DPS.All, left.DamageOut.DPS.All, 0.001)
		require.InDelta(t, right.DamageIn.TotalDamage.All, left.DamageIn.TotalDamage.All, 0.001)
	}

	require.InDelta(t, scratch.TotalDamageOut.All, incremental.TotalDamageOut.All, 0.001)
	require.Equal(t, scratch.TotalHitsOut, incremental.TotalHitsOut)
}

func TestAnalyzerUpdateIsIdempotent(t *testing.T) {
	path := writeLog(t, firstCombatLines()...)
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())
	totalAfterFirst := engine.Latest().TotalDamageOut.All

	require.NoError(t, engine.Update())
	require.InDelta(t, totalAfterFirst, engine.Latest().TotalDamageOut.All, 0.001)
	require.Len(t, engine.Combats(), 1)
}

func TestAnalyzerSkipsInvalidLines(t *testing.T) {
	lines := firstCombatLines()
	lines = append([]string{"garbage line\n"}, lines...)

	path := writeLog(t, lines...)
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())
	require.Len(t, engine.Combats(), 1)
	require.Len(t, engine.Latest().Players, 2)
}

func TestAnalyzerPetGrouping(t *testing.T) {
	path := writeLog(t,
		testLine(0, `Bob,P[101@201 Bob@bob],Photon Torpedo,C[20 Pet_Torp],Borg Sphere,C[10 Space_Borg_Sphere],Torpedo Spread,Pn.F1,Kinetic,,750,800`))
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	combat := engine.Latest()
	bobPlayer := combat.Players[bob]
	require.NotNil(t, bobPlayer)

	pet := combat.Names.Handle("Photon Torpedo")
	ability := combat.Names.Handle("Torpedo Spread")

	pool := bobPlayer.DamageOut.SubGroups[pet]
	require.NotNil(t, pool)
	require.True(t, pool.IsPool())
	require.NotNil(t, pool.SubGroups[ability])
	require.InDelta(t, 750, pool.TotalDamage.All, 0.001)
}

func TestAnalyzerGroupingReversalRule(t *testing.T) {
	settings := Settings{
		GroupingReversalRules: []MatchRule{{
			Enabled:    true,
			Aspect:     AspectValueName,
			Method:     MethodEquals,
			Expression: "Torpedo Spread",
		}},
	}

	path := writeLog(t,
		testLine(0, `Bob,P[101@201 Bob@bob],Photon Torpedo,C[20 Pet_Torp],Borg Sphere,C[10 Space_Borg_Sphere],Torpedo Spread,Pn.F1,Kinetic,,750,800`))

	settings.CombatlogFile = path

	engine, errNew := New(settings)
	require.NoError(t, errNew)

	t.Cleanup(func() { _ = engine.Close() })

	require.NoError(t, engine.Update())

	combat := engine.Latest()
	bobPlayer := combat.Players[bob]

	// A reversal rule puts the ability on the outside and the pet inside.
	ability := combat.Names.Handle("Torpedo Spread")
	pet := combat.Names.Handle("Photon Torpedo")

	pool := bobPlayer.DamageOut.SubGroups[ability]
	require.NotNil(t, pool)
	require.True(t, pool.IsPool())
	require.NotNil(t, pool.SubGroups[pet])
}

func TestAnalyzerCombatNameRules(t *testing.T) {
	settings := Settings{
		CombatNameRules: []NamedRule{{
			Name: "Infected Space",
			Rules: []MatchRule{{
				Enabled:    true,
				Aspect:     AspectSourceOrTargetUniqueName,
				Method:     MethodStartsWith,
				Expression: "Space_Borg",
			}},
		}},
	}

	path := writeLog(t, firstCombatLines()...)
	settings.CombatlogFile = path

	engine, errNew := New(settings)
	require.NoError(t, errNew)

	t.Cleanup(func() { _ = engine.Close() })

	require.NoError(t, engine.Update())
	require.Equal(t, "Infected Space", engine.Latest().Name())
	require.Contains(t, engine.Latest().Identifier(), "Infected Space")
}

func TestAnalyzerExtractCombat(t *testing.T) {
	lines := firstCombatLines()
	second := testLine(15+100, `Alice,P[100@200 Alice@alice],,*,Alice,P[100@200 Alice@alice],Hazard Emitters,Pn.D1,HitPoints,,-500,0`)
	lines = append(lines, second)

	path := writeLog(t, lines...)
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())
	require.Len(t, engine.Combats(), 2)

	var buf bytes.Buffer
	require.NoError(t, engine.ExtractCombat(&buf, engine.Combats()[0]))
	require.Equal(t, strings.Join(firstCombatLines(), ""), buf.String())

	buf.Reset()
	require.NoError(t, engine.ExtractCombat(&buf, engine.Combats()[1]))
	require.Equal(t, second, buf.String())
}

func TestAnalyzerPlayerSubSourceIncoming(t *testing.T) {
	// Some boss abilities report the hit player in the sub source slot
	// with an empty target.
	path := writeLog(t,
		testLine(0, `Borg Queen Octahedron,C[25 Mission_Space_Borg_Queen_Diamond],Ayel,P[12793028@5473940 Ayel@greyblizzard],,*,Plasma Fire,Pn.Wujkxq,Plasma,Kill,2086.87,5300.66`))
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	combat := engine.Latest()
	ayel := combat.Players["Ayel@greyblizzard"]
	require.NotNil(t, ayel)
	require.InDelta(t, 2086.87, ayel.DamageIn.TotalDamage.All, 0.001)
	require.InDelta(t, 0, ayel.DamageOut.TotalDamage.All, 0.001)
	require.Equal(t, uint64(1), ayel.Deaths)
	require.Equal(t, uint64(0), ayel.Kills)

	// The attack groups under the attacking entity.
	attacker := combat.Names.Handle("Borg Queen Octahedron")
	require.NotNil(t, ayel.DamageIn.SubGroups[attacker])
}

func TestAnalyzerSingleRecordLog(t *testing.T) {
	// A damage only player leaves its DamageIn and heal trees empty; the
	// empty pools must recompute to zeroed metrics.
	path := writeLog(t,
		testLine(0, `Alice,P[100@200 Alice@alice],,*,Borg Sphere,C[10 Space_Borg_Sphere],Phaser Array,Pn.A1,Phaser,,1000,1200`))
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	alicePlayer := engine.Latest().Players[alice]
	require.NotNil(t, alicePlayer)
	require.InDelta(t, 1000, alicePlayer.DamageOut.TotalDamage.All, 0.001)
	require.InDelta(t, 0, alicePlayer.DamageIn.TotalDamage.All, 0.001)
	require.InDelta(t, 0, alicePlayer.HealOut.TotalHeal.All, 0.001)
	require.InDelta(t, 0, alicePlayer.HealIn.TotalHeal.All, 0.001)
	require.False(t, alicePlayer.HealOut.Values.IsLeaf())
}

func TestAnalyzerKillFlagOnlyCountsForDamage(t *testing.T) {
	path := writeLog(t,
		// A zero value record carries no statistical weight, kill flag or
		// not.
		testLine(0, `Borg Sphere,C[10 Space_Borg_Sphere],,*,Bob,P[101@201 Bob@bob],Plasma Torpedo,Pn.E1,Kinetic,Kill,0,0`),
		// Neither does a kill flag on a heal.
		testLine(5, `Alice,P[100@200 Alice@alice],,*,Bob,P[101@201 Bob@bob],Hazard Emitters,Pn.D1,HitPoints,Kill,-500,0`))
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	combat := engine.Latest()
	require.Equal(t, uint64(0), combat.TotalKills)
	require.Equal(t, uint64(0), combat.TotalDeaths)

	bobPlayer := combat.Players[bob]
	require.NotNil(t, bobPlayer)
	require.Equal(t, uint64(0), bobPlayer.Deaths)
	require.InDelta(t, 500, bobPlayer.HealIn.TotalHeal.Hull, 0.001)
}

func TestAnalyzerIncomingRoutesTargetAndSubSource(t *testing.T) {
	// One boss ability can land on the target player and on a second
	// player reported in the sub source slot at the same time; both take
	// the hit.
	path := writeLog(t,
		testLine(0, `Borg Queen Octahedron,C[25 Mission_Space_Borg_Queen_Diamond],Ayel,P[12793028@5473940 Ayel@greyblizzard],Alice,P[100@200 Alice@alice],Plasma Fire,Pn.Wujkxq,Plasma,Kill,1000,1200`))
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	combat := engine.Latest()
	require.Len(t, combat.Players, 2)

	for _, name := range []string{alice, "Ayel@greyblizzard"} {
		player := combat.Players[name]
		require.NotNil(t, player)
		require.InDelta(t, 1000, player.DamageIn.TotalDamage.All, 0.001)
		require.Equal(t, uint64(1), player.Deaths)
	}

	require.Equal(t, uint64(0), combat.TotalKills)
	require.Equal(t, uint64(2), combat.TotalDeaths)
}

func TestCombatSnapshotIsIndependent(t *testing.T) {
	path := writeLog(t, firstCombatLines()...)
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	snapshot := engine.Latest().Snapshot()
	require.NotSame(t, engine.Latest().Players[alice], snapshot.Players[alice])

	totalBefore := snapshot.TotalDamageOut.All

	appendLog(t, path,
		testLine(20, `Alice,P[100@200 Alice@alice],,*,Borg Sphere,C[10 Space_Borg_Sphere],Phaser Array,Pn.A1,Phaser,Critical,500,600`))
	require.NoError(t, engine.Update())

	require.Greater(t, engine.Latest().TotalDamageOut.All, totalBefore)
	require.InDelta(t, totalBefore, snapshot.TotalDamageOut.All, 0.001)
	require.InDelta(t, 1000, snapshot.Players[alice].DamageOut.TotalDamage.All, 0.001)
	require.Equal(t, "Alice@alice", snapshot.Names.Name(snapshot.Players[alice].Name))
}

func TestAnalyzerDirectSelfDamageIgnored(t *testing.T) {
	path := writeLog(t,
		testLine(0, `Alice,P[100@200 Alice@alice],,*,,*,Warp Core Breach,Pn.G1,Kinetic,,10000,10000`))
	engine := newTestAnalyzer(t, path)

	require.NoError(t, engine.Update())

	combat := engine.Latest()
	require.NotNil(t, combat)

	alicePlayer, found := combat.Players[alice]
	if found {
		require.InDelta(t, 0, alicePlayer.DamageOut.TotalDamage.All, 0.001)
	}
}
