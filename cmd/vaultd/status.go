package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vaultengine/vaultengine/internal/vaultcore"
)

// ANSI color codes for status line highlighting, used only when stdout is a
// terminal (see colorize).
const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// colorize wraps s in an ANSI color code, but only when stdout is a
// terminal — piping `vaultd status` into a file or another process must
// never embed escape codes in the output.
func colorize(code, s string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}

	return code + s + ansiReset
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, mounts, repos, and transfer status",
		Long: `Display whether a session is persisted, and (if the vault host is
reachable) the mounts and vault repos it reports and any in-flight
transfer progress.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		fmt.Println("Not logged in. Run 'vaultd login' first.")

		return nil
	}
	defer sess.Close()

	if err := loadAll(ctx, sess); err != nil {
		return fmt.Errorf("loading server state: %w", err)
	}

	if flagJSON {
		return printStatusJSON(sess.vault)
	}

	printStatus(sess.vault)

	return nil
}

// statusMount and statusRepo are the JSON projection of a mount/repo; field
// names are chosen for the output, independent of the internal state shape.
type statusMount struct {
	Name      string `json:"name"`
	Online    bool   `json:"online"`
	IsPrimary bool   `json:"is_primary"`
}

type statusRepo struct {
	Path     string `json:"path"`
	Unlocked bool   `json:"unlocked"`
}

type statusOutput struct {
	Mounts    []statusMount           `json:"mounts"`
	Repos     []statusRepo            `json:"repos"`
	Transfers vaultcore.TransfersSummary `json:"transfers"`
}

func printStatusJSON(store *vaultcore.Store) error {
	var out statusOutput

	vaultcore.WithR(store, func(state *vaultcore.State) any {
		for _, id := range state.Mounts.SortedMountIDs() {
			m := state.Mounts.Mounts[id]
			out.Mounts = append(out.Mounts, statusMount{Name: m.Name, Online: m.Online, IsPrimary: m.IsPrimary})
		}

		for _, repo := range state.Repos.Repos {
			out.Repos = append(out.Repos, statusRepo{Path: string(repo.TreePath), Unlocked: repo.State.Unlocked})
		}

		out.Transfers = vaultcore.Summary(state)

		return nil
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printStatus(store *vaultcore.Store) {
	vaultcore.WithR(store, func(state *vaultcore.State) any {
		fmt.Println("Mounts:")

		for _, id := range state.Mounts.SortedMountIDs() {
			m := state.Mounts.Mounts[id]

			online := colorize(ansiRed, "offline")
			if m.Online {
				online = colorize(ansiGreen, "online")
			}

			primary := ""
			if m.IsPrimary {
				primary = " (primary)"
			}

			fmt.Printf("  %-20s %s%s\n", m.Name, online, primary)
		}

		fmt.Println()
		fmt.Println("Vault repos:")

		for _, repo := range state.Repos.Repos {
			lockState := colorize(ansiRed, "locked")
			if repo.State.Unlocked {
				lockState = colorize(ansiGreen, "unlocked")
			}

			fmt.Printf("  %-30s %s\n", repo.TreePath, lockState)
		}

		summary := vaultcore.Summary(state)

		fmt.Println()
		fmt.Printf("Transfers: %d total, %d done, %d failed (%s / %s, %.1f%%)\n",
			summary.TotalCount, summary.DoneCount, summary.FailedCount,
			humanize.Bytes(uint64(summary.DoneBytes)), humanize.Bytes(uint64(summary.TotalBytes)),
			summary.Percentage)

		return nil
	})
}
