// lightsearch 提供檔案系統中繼資料採集、索引與搜尋的指令列介面
// Command lightsearch harvests filesystem metadata, maintains a searchable
// index of it, and keeps the index live through a filesystem watcher.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightsearch/lightsearch/internal/checksum"
	"github.com/lightsearch/lightsearch/internal/config"
	"github.com/lightsearch/lightsearch/internal/daemon"
	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/harvest"
	"github.com/lightsearch/lightsearch/internal/logger"
	"github.com/lightsearch/lightsearch/internal/progress"
	"github.com/lightsearch/lightsearch/internal/query"
	"github.com/lightsearch/lightsearch/internal/service"
	"github.com/lightsearch/lightsearch/internal/state"
	"github.com/lightsearch/lightsearch/internal/store"
	"github.com/lightsearch/lightsearch/internal/verify"
)

const timeRound = time.Millisecond

var (
	flagConfig   string
	flagDatabase string
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if errors.Is(err, domain.ErrConfigNotFound) && flagConfig == "" {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}
	if flagDatabase != "" {
		cfg.DatabasePath = config.ExpandPath(flagDatabase)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.DatabasePath = config.ExpandPath(cfg.DatabasePath)
	return cfg, nil
}

// initLogging configures the global logger from cfg.
func initLogging(cfg *config.Config) error {
	logCfg := logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.FormatText,
	}
	if cfg.LogFile.Enabled {
		logCfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       config.ExpandPath(cfg.LogFile.Path),
			MaxSizeMB:  cfg.LogFile.MaxSizeMB,
			MaxAgeDays: cfg.LogFile.MaxAgeDays,
			MaxBackups: cfg.LogFile.MaxBackups,
			Compress:   cfg.LogFile.Compress,
		}
	}
	return logger.Init(logCfg)
}

// setup is shared by every command that needs config and logging.
func setup() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine opens the store read side and wraps it in a query engine.
// The caller must close the returned store.
func openEngine() (*store.Store, *query.Engine, error) {
	cfg, err := setup()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return st, query.NewEngine(st), nil
}

var rootCmd = &cobra.Command{
	Use:           "lightsearch",
	Short:         "Filesystem metadata index and search",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest PATH",
	Short: "Scan a directory tree and export its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		quiet, _ := cmd.Flags().GetBool("quiet")
		if format != "json" && format != "csv" {
			return fmt.Errorf("unknown format %q (want json or csv)", format)
		}

		h := harvest.New()
		if !quiet {
			h.SetReporter(progress.NewCallbackReporter(func(u progress.Update) {
				switch u.Type {
				case progress.UpdateProgress:
					fmt.Fprintf(os.Stderr, "Processed %d entries...\n", u.Entries)
				case progress.UpdateComplete:
					fmt.Fprintf(os.Stderr, "Scan complete: %d entries in %s\n", u.Entries, u.Elapsed.Round(timeRound))
				}
			}))
		}

		scanStart := time.Now()
		records, err := h.Scan(args[0])
		if err != nil {
			return err
		}

		out := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if format == "csv" {
			return harvest.WriteCSV(out, records)
		}
		return harvest.WriteJSON(out, records, scanStart)
	},
}

// load command
var loadCmd = &cobra.Command{
	Use:   "load PATH",
	Short: "Build the index from a directory or a harvest JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		svc, err := service.NewIndexService(cfg)
		if err != nil {
			return err
		}

		target := args[0]
		info, err := os.Stat(target)
		if err != nil {
			return err
		}

		var n int
		if info.IsDir() {
			n, err = svc.BuildIndex(target, progress.NewCallbackReporter(func(u progress.Update) {
				if u.Type == progress.UpdateProgress {
					fmt.Fprintf(os.Stderr, "Indexed %d entries...\n", u.Entries)
				}
			}))
		} else {
			n, err = svc.LoadDocument(target)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %d entries into %s\n", n, cfg.DatabasePath)
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search the index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, engine, err := openEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		interactive, _ := cmd.Flags().GetBool("interactive")
		if interactive {
			return query.NewInteractive(engine, os.Stdout).Run()
		}

		f, err := filterFromFlags(cmd, args)
		if err != nil {
			return err
		}

		results, err := engine.Search(f)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}

		for _, rec := range results {
			marker := " "
			if rec.IsDir {
				marker = "d"
			}
			fmt.Printf("%s %10s  %s  %s\n",
				marker,
				query.FormatSize(rec.Size),
				query.FormatTime(rec.ModTime),
				rec.Path,
			)
		}
		fmt.Printf("\n%d result(s)\n", len(results))
		return nil
	},
}

// filterFromFlags assembles a query filter from the search command flags.
func filterFromFlags(cmd *cobra.Command, args []string) (query.Filter, error) {
	var f query.Filter
	if len(args) > 0 {
		f.Text = args[0]
	}

	f.Regex, _ = cmd.Flags().GetString("regex")
	f.RecentDays, _ = cmd.Flags().GetInt("recent")
	f.OlderDays, _ = cmd.Flags().GetInt("older")
	f.DirsOnly, _ = cmd.Flags().GetBool("dirs")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	f.Offset, _ = cmd.Flags().GetInt("offset")

	if s, _ := cmd.Flags().GetString("size-min"); s != "" {
		v, err := query.ParseSize(s)
		if err != nil {
			return f, fmt.Errorf("invalid --size-min: %w", err)
		}
		f.SizeMin = v
	}
	if s, _ := cmd.Flags().GetString("size-max"); s != "" {
		v, err := query.ParseSize(s)
		if err != nil {
			return f, fmt.Errorf("invalid --size-max: %w", err)
		}
		f.SizeMax = v
	}
	return f, nil
}

// daemon commands
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the live sync daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		svc, err := service.NewDaemonService(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Start(); err != nil {
			return err
		}
		fmt.Printf("Daemon started, watching %d path(s). Ctrl-C to stop.\n", len(cfg.WatchPaths))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		return svc.Stop()
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile := daemon.NewPIDFile(daemon.DefaultPIDPath())
		if pid, running := pidFile.IsRunning(); running {
			fmt.Printf("Daemon running with PID %d\n", pid)
			return nil
		}
		fmt.Println("Daemon is not running.")
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile := daemon.NewPIDFile(daemon.DefaultPIDPath())
		if err := pidFile.Kill(); err != nil {
			return err
		}
		fmt.Println("Daemon stopped.")
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, engine, err := openEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		if warm, _ := cmd.Flags().GetBool("warm"); warm {
			if err := st.Warm(); err != nil {
				return err
			}
			fmt.Println("Cache warmed.")
		}

		stats, err := engine.Stats()
		if err != nil {
			return err
		}

		fmt.Printf("Indexed entries:  %d\n", stats.TotalEntries)
		fmt.Printf("  Files:          %d\n", stats.Files)
		fmt.Printf("  Directories:    %d\n", stats.Directories)
		fmt.Printf("Total file size:  %s\n", query.FormatSize(stats.TotalSize))
		fmt.Printf("Database size:    %s\n", query.FormatSize(stats.DBSizeBytes))
		if !stats.LastFullScan.IsZero() {
			fmt.Printf("Last full scan:   %s\n", query.FormatTime(stats.LastFullScan))
		}
		if !stats.LastIncremental.IsZero() {
			fmt.Printf("Last incremental: %s\n", query.FormatTime(stats.LastIncremental))
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scan and load runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		j, err := state.Open(filepath.Dir(cfg.DatabasePath))
		if err != nil {
			return err
		}
		defer j.Close()

		runs, err := j.History(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No recorded runs.")
			return nil
		}

		for _, run := range runs {
			line := fmt.Sprintf("%s  %-13s %-7s %8d entries  %-8s %s",
				run.StartTime.Format("2006-01-02 15:04:05"),
				run.Operation,
				run.Status,
				run.Records,
				run.EndTime.Sub(run.StartTime).Round(timeRound),
				run.Root,
			)
			fmt.Println(line)
			if run.Error != "" {
				fmt.Printf("    error: %s\n", run.Error)
			}
		}
		return nil
	},
}

// dupes command
var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find files with identical content",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		minSizeStr, _ := cmd.Flags().GetString("min-size")
		algoStr, _ := cmd.Flags().GetString("algo")

		minSize, err := query.ParseSize(minSizeStr)
		if err != nil {
			return fmt.Errorf("invalid --min-size: %w", err)
		}

		finder, err := service.NewDupeFinder(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		groups, err := finder.Find(ctx, minSize, checksum.Algorithm(algoStr))
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}

		var wasted int64
		for _, g := range groups {
			wasted += g.Wasted()
			fmt.Printf("%s  %s  (%d copies)\n", g.Digest[:12], query.FormatSize(g.Size), len(g.Paths))
			for _, p := range g.Paths {
				fmt.Printf("    %s\n", p)
			}
		}
		fmt.Printf("\n%d duplicate group(s), %s recoverable\n", len(groups), query.FormatSize(wasted))
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify PATH",
	Short: "Check the index against the filesystem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		fix, _ := cmd.Flags().GetBool("fix")
		samples, _ := cmd.Flags().GetInt("samples")

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		root := config.ExpandPath(args[0])
		report, err := verify.New(st).Check(root, samples)
		if err != nil {
			return err
		}

		fmt.Printf("Checked %d entries under %s\n", report.Checked, report.Root)
		fmt.Printf("  Identical: %d\n", report.Identical)
		fmt.Printf("  Modified:  %d\n", report.Modified)
		fmt.Printf("  Missing:   %d\n", report.Missing)
		fmt.Printf("  Orphaned:  %d\n", report.Orphaned)
		for _, drift := range report.Drifts {
			fmt.Printf("  [%s] %s\n", drift.State, drift.Path)
		}

		if report.Clean() {
			fmt.Println("Index is in sync.")
			return nil
		}
		if !fix {
			fmt.Println("Run with --fix to reconcile.")
			return nil
		}

		st.Close()
		svc, err := service.NewIndexService(cfg)
		if err != nil {
			return err
		}
		n, err := svc.RebuildRoot(root)
		if err != nil {
			return err
		}
		fmt.Printf("Reconciled %d entries under %s\n", n, root)
		return nil
	},
}

// benchmark command
var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Time a sample query set against the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, engine, err := openEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := engine.Benchmark()
		if err != nil {
			return err
		}

		fmt.Printf("Ran %d queries in %s (%s per query), %d total matches\n",
			result.Queries,
			result.Total.Round(timeRound),
			result.PerQuery.Round(timeRound),
			result.Matches,
		)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "db", "", "Override the database path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override the log level")

	harvestCmd.Flags().StringP("format", "f", "json", "Output format: json or csv")
	harvestCmd.Flags().StringP("output", "o", "", "Write output to file instead of stdout")
	harvestCmd.Flags().BoolP("quiet", "q", false, "Suppress progress output")
	rootCmd.AddCommand(harvestCmd)

	rootCmd.AddCommand(loadCmd)

	searchCmd.Flags().BoolP("interactive", "i", false, "Start an interactive search session")
	searchCmd.Flags().String("regex", "", "Regular expression applied to the full path")
	searchCmd.Flags().String("size-min", "", "Minimum size (e.g. 100K, 1.5M)")
	searchCmd.Flags().String("size-max", "", "Maximum size (e.g. 1G)")
	searchCmd.Flags().Int("recent", 0, "Only entries modified in the last N days")
	searchCmd.Flags().Int("older", 0, "Only entries modified more than N days ago")
	searchCmd.Flags().Bool("dirs", false, "Directories only")
	searchCmd.Flags().Int("limit", query.DefaultLimit, "Maximum number of results")
	searchCmd.Flags().Int("offset", 0, "Skip the first N results")
	rootCmd.AddCommand(searchCmd)

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)

	statsCmd.Flags().Bool("warm", false, "Warm the page cache before reporting")
	rootCmd.AddCommand(statsCmd)

	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)

	dupesCmd.Flags().String("min-size", "1M", "Smallest file size to consider")
	dupesCmd.Flags().String("algo", string(checksum.MD5), "Checksum algorithm: md5 or sha256")
	rootCmd.AddCommand(dupesCmd)

	verifyCmd.Flags().Bool("fix", false, "Reconcile the index after reporting")
	verifyCmd.Flags().Int("samples", 50, "Maximum drifted paths to list (0 = all)")
	rootCmd.AddCommand(verifyCmd)

	rootCmd.AddCommand(benchmarkCmd)
}
