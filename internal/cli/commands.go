// Package cli implements the interactive command-line interface for
// HostLink: live match status, player and statistics tables, chat, and the
// persisted match history.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/hostlink-project/hostlink/internal/config"
	"github.com/hostlink-project/hostlink/internal/match"
	"github.com/hostlink-project/hostlink/internal/store"
)

// SayFunc queues a chat message for the engine on the pump goroutine.
type SayFunc func(text string) bool

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	tracker  *match.Tracker
	history  *store.MatchStore // nil when persistence is disabled
	say      SayFunc
	shutdown func()
}

// NewCLI creates a new CLI handler. shutdown is invoked on the quit command.
func NewCLI(cfg *config.Config, tracker *match.Tracker, history *store.MatchStore, say SayFunc, shutdown func()) *CLI {
	return &CLI{
		cfg:      cfg,
		tracker:  tracker,
		history:  history,
		say:      say,
		shutdown: shutdown,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nHostLink CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("hostlink> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "players", "p":
		c.printPlayers()
	case "chat":
		c.printChat()
	case "stats":
		c.printTeamStats()
	case "history":
		return c.printHistory(args)
	case "say":
		return c.cmdSay(args)
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down HostLink...")
		c.shutdown()
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     HostLink CLI Commands                    ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Show session state and match info       ║")
	fmt.Println("║  players            Show the live player table              ║")
	fmt.Println("║  chat               Show chat of the current match          ║")
	fmt.Println("║  stats              Show last reported team statistics      ║")
	fmt.Println("║  history [n]        Show the last n persisted matches       ║")
	fmt.Println("║  say <message>      Send a chat message to the game         ║")
	fmt.Println("║  setconfig <k> <v>  Update an engine configuration value    ║")
	fmt.Println("║  quit               Shutdown HostLink                       ║")
	fmt.Println("║  help               Show this help message                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays the live session state.
func (c *CLI) printStatus() {
	snap := c.tracker.Snapshot()

	fmt.Printf("\n  State:      %s\n", snap.State)
	fmt.Printf("  Game ID:    %s\n", orDash(snap.GameID))
	fmt.Printf("  Demo:       %s\n", orDash(snap.DemoName))
	if snap.StartedAt.IsZero() {
		fmt.Printf("  Started:    -\n")
	} else {
		fmt.Printf("  Started:    %s\n", snap.StartedAt.Format(time.RFC3339))
	}
	fmt.Printf("  Players:    %d\n", len(snap.Players))
	fmt.Printf("  Chat lines: %d\n", len(snap.Chat))
	fmt.Println()
}

// printPlayers displays the player table.
func (c *CLI) printPlayers() {
	snap := c.tracker.Snapshot()
	if len(snap.Players) == 0 {
		fmt.Println("No players.")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"#", "Name", "State", "Ready", "Lost", "Winning Teams", "Address"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for nb := 0; nb < 256; nb++ {
		p, ok := snap.Players[uint8(nb)]
		if !ok {
			continue
		}

		teams := "-"
		if p.HasOutcome {
			ids := make([]string, len(p.WinningAllyTeams))
			for i, t := range p.WinningAllyTeams {
				ids[i] = strconv.Itoa(int(t))
			}
			teams = strings.Join(ids, ",")
		}

		tw.Append([]string{
			strconv.Itoa(nb),
			p.Name,
			p.DisconnectCause.String(),
			p.Ready.String(),
			fmt.Sprintf("%v", p.Lost),
			teams,
			orDash(p.Address),
		})
	}

	tw.Render()
	fmt.Println()
}

// printChat displays the chat log of the current match.
func (c *CLI) printChat() {
	snap := c.tracker.Snapshot()
	if len(snap.Chat) == 0 {
		fmt.Println("No chat.")
		return
	}

	fmt.Println()
	for _, line := range snap.Chat {
		name := line.PlayerName
		if name == "" {
			name = fmt.Sprintf("player %d", line.PlayerNb)
		}
		fmt.Printf("  [%s] %s -> %s: %s\n",
			line.Timestamp.Format("15:04:05"), name, destLabel(line.Destination), line.Text)
	}
	fmt.Println()
}

// printTeamStats displays the last reported statistics per team.
func (c *CLI) printTeamStats() {
	snap := c.tracker.Snapshot()
	if len(snap.TeamStats) == 0 {
		fmt.Println("No team statistics reported yet.")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Team", "Frame", "Metal Prod", "Energy Prod", "Damage Dealt", "Units Killed", "Units Died"})
	tw.SetBorder(true)

	for nb := 0; nb < 256; nb++ {
		stats, ok := snap.TeamStats[uint8(nb)]
		if !ok {
			continue
		}
		tw.Append([]string{
			strconv.Itoa(nb),
			strconv.FormatUint(uint64(stats.Frame), 10),
			fmt.Sprintf("%.0f", stats.MetalProduced),
			fmt.Sprintf("%.0f", stats.EnergyProduced),
			fmt.Sprintf("%.0f", stats.DamageDealt),
			strconv.FormatUint(uint64(stats.UnitsKilled), 10),
			strconv.FormatUint(uint64(stats.UnitsDied), 10),
		})
	}

	tw.Render()
	fmt.Println()
}

// printHistory displays the persisted match history.
func (c *CLI) printHistory(args []string) error {
	if c.history == nil {
		fmt.Println("Match history is disabled.")
		return nil
	}

	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	matches, err := c.history.Recent(limit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matches recorded.")
		return nil
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Game ID", "Players", "Started", "Duration"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, m := range matches {
		tw.Append([]string{
			strconv.FormatInt(m.ID, 10),
			orDash(m.GameID),
			strconv.Itoa(m.PlayerCount),
			m.StartedAt.Format("2006-01-02 15:04"),
			m.EndedAt.Sub(m.StartedAt).Round(time.Second).String(),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdSay(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: say <message>")
	}
	if c.say == nil {
		return fmt.Errorf("chat sending not available")
	}

	message := strings.Join(args, " ")
	if !c.say(message) {
		return fmt.Errorf("no server running")
	}
	fmt.Printf("Sent: %s\n", message)
	return nil
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateEngineField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// destLabel renders a chat destination for display. Named destinations map
// to an audience label, anything else is a direct message target.
func destLabel(dest string) string {
	if dest == "" {
		return "public"
	}
	return dest
}
