package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/wolfsblu/stoca/internal/analyzer"
)

func formatAmount(value float64) string {
	return humanize.CommafWithDigits(value, 1)
}

func formatOptional(value analyzer.Optional) string {
	if !value.Valid {
		return "-"
	}

	return fmt.Sprintf("%.1f%%", value.Value)
}

// playersByDamage returns the combat's players sorted by total damage
// output, name as tiebreaker so repeated renders stay stable.
func playersByDamage(combat *analyzer.Combat) []*analyzer.Player {
	players := make([]*analyzer.Player, 0, len(combat.Players))
	for _, player := range combat.Players {
		players = append(players, player)
	}

	sort.Slice(players, func(i, j int) bool {
		left, right := players[i], players[j]
		if left.DamageOut.TotalDamage.All != right.DamageOut.TotalDamage.All {
			return left.DamageOut.TotalDamage.All > right.DamageOut.TotalDamage.All
		}

		return combat.Names.Name(left.Name) < combat.Names.Name(right.Name)
	})

	return players
}

func renderCombat(writer io.Writer, combat *analyzer.Combat) {
	duration := "-"
	if combat.CombatTime != nil {
		duration = combat.CombatTime.Duration().Round(time.Second).String()
	}

	fmt.Fprintf(writer, "\n%s  (combat time %s, %d players)\n",
		combat.Identifier(), duration, len(combat.Players))

	renderDamageTable(writer, combat)
	renderHealTable(writer, combat)
}

func renderDamageTable(writer io.Writer, combat *analyzer.Combat) {
	table := tablewriter.NewTable(writer)
	table.Header("Player", "DPS", "Total Damage", "Dmg %", "Max One Hit", "Crit %", "Accuracy", "Dmg Taken", "Kills", "Deaths")

	for _, player := range playersByDamage(combat) {
		maxHitName, _ := combat.Names.GetName(player.DamageOut.MaxOneHit.Name)

		_ = table.Append([]string{
			combat.Names.Name(player.Name),
			formatAmount(player.DamageOut.DPS.All),
			formatAmount(player.DamageOut.TotalDamage.All),
			formatOptional(player.DamageOut.DamagePercentage.All),
			fmt.Sprintf("%s (%s)", formatAmount(player.DamageOut.MaxOneHit.Damage), maxHitName),
			formatOptional(player.DamageOut.CriticalChance),
			formatOptional(player.DamageOut.Accuracy),
			formatAmount(player.DamageIn.TotalDamage.All),
			humanize.Comma(int64(player.Kills)),  //nolint:gosec
			humanize.Comma(int64(player.Deaths)), //nolint:gosec
		})
	}

	_ = table.Render()
}

func renderHealTable(writer io.Writer, combat *analyzer.Combat) {
	if combat.TotalHealOut.All == 0 {
		return
	}

	table := tablewriter.NewTable(writer)
	table.Header("Player", "HPS", "Total Heal", "Heal %", "Ticks", "Crit %", "Heal Received")

	for _, player := range playersByDamage(combat) {
		if player.HealOut.TotalHeal.All == 0 && player.HealIn.TotalHeal.All == 0 {
			continue
		}

		_ = table.Append([]string{
			combat.Names.Name(player.Name),
			formatAmount(player.HealOut.HPS.All),
			formatAmount(player.HealOut.TotalHeal.All),
			formatOptional(player.HealOut.HealPercentage.All),
			humanize.Comma(int64(player.HealOut.Ticks.All)), //nolint:gosec
			formatOptional(player.HealOut.CriticalChance),
			formatAmount(player.HealIn.TotalHeal.All),
		})
	}

	_ = table.Render()
}
