package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sleepcode/relayd/internal/config"
	"github.com/sleepcode/relayd/internal/daemon"
	"github.com/sleepcode/relayd/internal/logging"
	"github.com/sleepcode/relayd/internal/registry"
	"github.com/sleepcode/relayd/internal/supervisor"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "relayd",
		Short: "relayd — bridges a local coding agent's PTY session to remote chat adapters",
	}

	root.AddCommand(serveCmd(), statusCmd(), sessionsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultDir() (string, error) {
	return config.GetUserConfigDir()
}

func serveCmd() *cobra.Command {
	var dir, socketPath, logLevel, logFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: registry, health loop, RPC hub and router",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				d, err := defaultDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				dir = d
			}
			if err := config.EnsureConfigDirs(dir); err != nil {
				return fmt.Errorf("ensure config dirs: %w", err)
			}

			boot, err := config.LoadBootstrapConfig(dir)
			if err != nil {
				return fmt.Errorf("load bootstrap config: %w", err)
			}
			if socketPath != "" {
				boot.SocketPath = socketPath
			}
			if boot.SocketPath == "" {
				boot.SocketPath = filepath.Join(dir, "relayd.sock")
			}
			if logLevel != "" {
				boot.LogLevel = logLevel
			}
			if logFile != "" {
				boot.LogFile = logFile
			}

			if err := logging.Init(boot.LogLevel, boot.LogFile); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			settings, err := config.LoadSettings(filepath.Join(dir, "settings.json"))
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logging.Info("relayd starting", "dir", dir, "socket", boot.SocketPath)
			return daemon.Run(ctx, daemon.Options{
				Dir:                dir,
				SocketPath:         boot.SocketPath,
				HealthInterval:     boot.HealthIntervalDuration(),
				AutoCleanupOrphans: settings.AutoCleanupOrphans,
				Log:                logging.Log,
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "config directory (default ~/.relayd)")
	cmd.Flags().StringVar(&socketPath, "socket", "", "RPC hub unix socket path (overrides relayd.yaml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFile, "log-file", "", "additional log file path")
	return cmd
}

func statusCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize session counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(&dir)
			if err != nil {
				return err
			}
			counts := map[registry.Status]int{}
			for _, s := range reg.List(func(registry.Status) bool { return true }) {
				counts[s.Status]++
			}
			fmt.Printf("starting: %d\nrunning:  %d\nidle:     %d\nstopping: %d\nstopped:  %d\norphaned: %d\n",
				counts[registry.StatusStarting], counts[registry.StatusRunning], counts[registry.StatusIdle],
				counts[registry.StatusStopping], counts[registry.StatusStopped], counts[registry.StatusOrphaned])
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "config directory (default ~/.relayd)")
	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Inspect supervised sessions"}
	cmd.AddCommand(sessionsListCmd(), sessionsStartCmd())
	return cmd
}

// sessionsStartCmd explicitly launches a supervised runner, the
// Supervisor-initiated session-creation path (spec.md §3's other path is
// implicit: a runner that connects over RPC before any CLI launch).
func sessionsStartCmd() *cobra.Command {
	var dir string
	var terminal bool
	cmd := &cobra.Command{
		Use:   "start -- <command> [args...]",
		Short: "Launch a supervised runner and register its starting session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				d, err := defaultDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				dir = d
			}
			if err := config.EnsureConfigDirs(dir); err != nil {
				return fmt.Errorf("ensure config dirs: %w", err)
			}

			reg, err := openRegistry(&dir)
			if err != nil {
				return err
			}

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getwd: %w", err)
			}

			sessionID := uuid.NewString()
			strategy := supervisor.LaunchBackground
			if terminal {
				strategy = supervisor.LaunchTerminalAttached
			}

			logsDir := filepath.Join(dir, "logs")
			if err := os.MkdirAll(logsDir, 0755); err != nil {
				return fmt.Errorf("ensure logs dir: %w", err)
			}

			sup := supervisor.New(reg, nil)
			pid, err := sup.Launch(supervisor.LaunchSpec{
				SessionID: sessionID,
				Command:   args,
				Cwd:       cwd,
				Strategy:  strategy,
				LogPath:   filepath.Join(logsDir, sessionID+".log"),
				Env:       []string{"RELAYD_SESSION_ID=" + sessionID},
			})
			if err != nil {
				return fmt.Errorf("launch: %w", err)
			}
			fmt.Printf("started session %s (pid %d)\n", sessionID, pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "config directory (default ~/.relayd)")
	cmd.Flags().BoolVar(&terminal, "terminal", false, "open a new terminal window instead of a background process (macOS only)")
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var dir string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supervised sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(&dir)
			if err != nil {
				return err
			}
			filter := registry.NonTerminal
			if all {
				filter = func(registry.Status) bool { return true }
			}
			sessions := reg.List(filter)
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tNAME\tPID\tSTARTED\tTHREAD")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.Status, s.Name, s.ChildPID, s.StartedAt.Format(time.RFC3339), s.ThreadID)
			}
			w.Flush()
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "config directory (default ~/.relayd)")
	cmd.Flags().BoolVar(&all, "all", false, "include terminal (stopped/orphaned) sessions")
	return cmd
}

func openRegistry(dir *string) (*registry.Registry, error) {
	if *dir == "" {
		d, err := defaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		*dir = d
	}
	reg := registry.New(filepath.Join(*dir, "registry.json"))
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, nil
}
