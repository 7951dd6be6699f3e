package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/openmined/sftpsync/internal/config"
	"github.com/openmined/sftpsync/internal/history"
	"github.com/openmined/sftpsync/internal/provider"
	"github.com/openmined/sftpsync/internal/sshconn"
	"github.com/openmined/sftpsync/internal/sync"
	"github.com/openmined/sftpsync/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var directionHelp = map[sync.Direction]string{
	sync.DirectionUp:    "Copy local changes to the remote tree",
	sync.DirectionDown:  "Copy remote changes to the local tree",
	sync.DirectionBoth:  "Run down, then up",
	sync.DirectionInit:  "Record files present on both sides as synchronized",
	sync.DirectionCheck: "Compare the remote tree with the revision file",
	sync.DirectionList:  "List local changes since the last pass, offline",
}

func init() {
	for _, dir := range sync.Directions {
		rootCmd.AddCommand(newSyncCmd(dir))
	}
}

func newSyncCmd(dir sync.Direction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(dir) + " HOST PATH",
		Short: directionHelp[dir],
		Long: directionHelp[dir] + `.

HOST is [user@]host[:port]. PATH is the remote directory, relative to the
login directory unless absolute. The local root defaults to ./basename(PATH).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			cmd.SilenceUsage = true
			return runSync(cmd.Context(), cmd.OutOrStdout(), cfg, dir, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringP("exclude", "e", "", "regular expression of paths to leave out, matched from the start")
	flags.BoolP("dry-run", "n", false, "report what would happen without changing anything")
	flags.BoolP("skip-on-error", "s", false, "continue with the next file after a conflict or failure")
	flags.String("subdir", "", "restrict the pass to this subdirectory")
	flags.StringP("local", "l", "", "local root directory")
	flags.BoolP("yes", "y", false, "answer yes to every question")
	flags.Bool("no", false, "answer no to every question")
	cmd.MarkFlagsMutuallyExclusive("yes", "no")

	if dir.NeedsRemote() {
		flags.StringP("identity", "i", "", "private key file")
		flags.String("known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	}
	return cmd
}

// runSync wires the workspace, the remote session and the sinks, then runs
// one pass.
func runSync(ctx context.Context, out io.Writer, cfg *config.Config, dir sync.Direction, host, remotePath string) error {
	target, err := sshconn.ParseTarget(host)
	if err != nil {
		return err
	}

	localDir := cfg.LocalDir
	if localDir == "" {
		localDir = workspace.DefaultRoot(remotePath)
	}
	ws, err := workspace.NewWorkspace(localDir)
	if err != nil {
		return err
	}
	create := dir == sync.DirectionDown || dir == sync.DirectionBoth || dir == sync.DirectionInit
	if err := ws.Setup(create); err != nil {
		return err
	}
	defer ws.Unlock()

	excludes, err := sync.NewExcludeList(ws.Root, cfg.Exclude)
	if err != nil {
		return err
	}
	if err := excludes.Load(); err != nil {
		return err
	}

	var remote provider.FS
	if dir.NeedsRemote() {
		session, err := sshconn.Dial(ctx, target, sshconn.Config{
			IdentityFile: cfg.IdentityFile,
			KnownHosts:   cfg.KnownHosts,
			Prompt:       sshconn.TerminalPrompt,
		})
		if err != nil {
			return err
		}
		defer session.Close()

		root, err := session.RemoteRoot(remotePath)
		if err != nil {
			return err
		}
		remote = provider.NewSFTP(session.SFTP, root)
	}

	sinks := sync.MultiSink{newPresenter(out, terminalWidth(out), isTerminal(out)), sync.LogSink{}}
	if journal, err := history.Open(cfg.HistoryDB); err != nil {
		slog.Warn("history disabled", "path", cfg.HistoryDB, "error", err)
	} else {
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	engine, err := sync.NewSyncEngine(sync.EngineConfig{
		Local:        provider.NewLocal(ws.Root),
		Remote:       remote,
		RevisionFile: ws.RevisionFile,
		Options: sync.Options{
			Subdir:      cfg.Subdir,
			DryRun:      cfg.DryRun,
			SkipOnError: cfg.SkipOnError,
		},
		Exclude: excludes.Func(),
		Confirm: newConfirmer(cfg.Assume, os.Stdin, os.Stderr),
		Sink:    sinks,
	})
	if err != nil {
		return err
	}

	if _, err := engine.Run(ctx, dir); err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
