package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"codegraph/internal/analysis"
	"codegraph/internal/config"
	"codegraph/internal/extractor"
	"codegraph/internal/git"
	"codegraph/internal/graph"
	"codegraph/internal/pipeline"
	"codegraph/internal/retrieval"
	"codegraph/internal/storage"
	"codegraph/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "codegraph",
		Short:         "Build a multi-language code graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}
	dbPath     string
	configPath string
	logLevel   string
	logJSON    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the graph database (SQLite), default from config")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "codegraph.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")

	indexCmd.Flags().StringSlice("languages", nil, "Languages to index (default: all)")
	indexCmd.Flags().String("backend", "", "Execution backend: auto, goroutine or process")
	indexCmd.Flags().Int("workers", 0, "Maximum number of workers")
	indexCmd.Flags().StringSlice("exclude", nil, "Glob patterns to exclude, relative to the root")
	indexCmd.Flags().String("snapshot", "", "Write the final graph as a JSON snapshot")
	indexCmd.Flags().String("metrics-file", "", "Write Prometheus metrics in text format")
	indexCmd.Flags().String("trace-file", "", "Write OpenTelemetry spans as JSON")
	indexCmd.Flags().Bool("no-store", false, "Do not write the graph to the database")
	indexCmd.Flags().Bool("sequential", false, "Disable parallel indexing")

	impactCmd.Flags().String("since", "HEAD", "Git ref to diff the working tree against")
	impactCmd.Flags().Int("hops", retrieval.DefaultConfig().MaxHops, "Neighbourhood radius around changed entities")
	impactCmd.Flags().StringSlice("kinds", nil, "Relation kinds to follow (default: all)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(impactCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(workerCmd)
}

func setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if logJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}

	flags := cmd.Flags()
	if flags.Lookup("languages") == nil {
		return cfg, nil
	}
	if flags.Changed("languages") {
		cfg.Indexing.Languages, _ = flags.GetStringSlice("languages")
	}
	if flags.Changed("backend") {
		cfg.Indexing.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("workers") {
		cfg.Indexing.MaxWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("exclude") {
		excludes, _ := flags.GetStringSlice("exclude")
		cfg.Project.Exclude = append(cfg.Project.Exclude, excludes...)
	}
	if sequential, _ := flags.GetBool("sequential"); sequential {
		cfg.Indexing.Parallel = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a source tree and store the resulting graph",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		root := cfg.Project.Root
		if len(args) > 0 {
			root = args[0]
		}
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}

		snapshotPath, _ := cmd.Flags().GetString("snapshot")
		metricsPath, _ := cmd.Flags().GetString("metrics-file")
		tracePath, _ := cmd.Flags().GetString("trace-file")
		noStore, _ := cmd.Flags().GetBool("no-store")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if tracePath != "" {
			shutdown, err := telemetry.InstallFileTracer(tracePath)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					slog.Warn("failed to flush traces", slog.Any("error", err))
				}
			}()
		}

		metrics := telemetry.NewMetrics()
		ix := pipeline.NewIndexer(cfg, pipeline.WithLogger(slog.Default()), pipeline.WithMetrics(metrics))

		info := ix.Coordinator().Info()
		fmt.Printf("📂 Indexing directory: %s\n", root)
		fmt.Printf("⚙️  Executor: backend=%s workers=%d parallel=%t threshold=%d gomaxprocs=%d\n",
			info.Backend, info.Workers, info.Parallel, info.MinFilesForParallel, info.GOMAXPROCS)

		fmt.Println("🚀 Building code graph...")
		res, err := ix.Run(ctx, root)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		printSummary(res)

		if snapshotPath != "" {
			if err := graph.SaveSnapshot(snapshotPath, res.Graph, res.RunID); err != nil {
				return err
			}
			fmt.Printf("📝 Snapshot written: %s\n", snapshotPath)
		}

		if !noStore {
			fmt.Println("💾 Saving to local database...")
			store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()
			if err := store.SaveGraph(ctx, res.Graph, res.RunID); err != nil {
				return fmt.Errorf("failed to save graph: %w", err)
			}
		}

		if metricsPath != "" {
			if err := metrics.WriteToTextfile(metricsPath); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
		}

		fmt.Printf("🎉 Index complete! Run: %s\n", res.RunID)
		return nil
	},
}

func printSummary(res *pipeline.Result) {
	s := res.Summary
	fmt.Printf("✅ Graph built in %v (%s, %d workers).\n", s.Duration.Round(time.Millisecond), s.Backend, s.Workers)
	fmt.Printf("  -> Files: %d indexed, %d failed, %d skipped\n", s.Files, s.Failed, s.Skipped)
	fmt.Printf("  -> Entities: %d, relations: %d, dangling: %d\n", s.Entities, s.Relations, s.Dangling)
	fmt.Printf("  -> Pending references: resolved=%d dropped=%d\n", s.Resolution.Resolved, s.Resolution.Skipped)
	if s.Collisions > 0 {
		fmt.Printf("⚠️  %d module names are shared by several files\n", s.Collisions)
	}
	for _, fe := range res.Failed {
		fmt.Printf("⚠️  %v\n", fe)
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the graph database holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if logJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Printf("📊 %s: %d entities, %d relations\n", cfg.Storage.DBPath, st.Entities, st.Relations)
		if st.LastRunID != "" {
			fmt.Printf("  -> Last run: %s at %s\n", st.LastRunID, st.LastRunAt)
		}
		for _, line := range countLines(st.EntitiesByKind) {
			fmt.Println("  ", line)
		}
		for _, line := range countLines(st.RelationsByKind) {
			fmt.Println("  ", line)
		}
		return nil
	},
}

func countLines(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%-20s %d", k, m[k]))
	}
	return out
}

var impactCmd = &cobra.Command{
	Use:   "impact [path]",
	Short: "Show which stored entities a git diff touches and what depends on them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := cfg.Project.Root
		if len(args) > 0 {
			dir = args[0]
		}
		since, _ := cmd.Flags().GetString("since")
		hops, _ := cmd.Flags().GetInt("hops")
		kinds, _ := cmd.Flags().GetStringSlice("kinds")

		ctx := cmd.Context()
		changes, err := git.GetChangedFiles(ctx, dir, since)
		if err != nil {
			return fmt.Errorf("failed to get git changes: %w", err)
		}
		if len(changes) == 0 {
			fmt.Println("✅ No changes detected.")
			return nil
		}
		fmt.Printf("📝 Detected %d changed files.\n", len(changes))

		store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		fmt.Println("🔄 Loading stored code graph...")
		g, err := store.LoadGraph(ctx)
		if err != nil {
			return fmt.Errorf("failed to load graph: %w", err)
		}

		fmt.Println("🔍 Analyzing impact...")
		report, err := analysis.NewAnalyzer(g).AnalyzeImpact(changes)
		if err != nil {
			return err
		}
		fmt.Printf("  -> %d entities directly affected\n", len(report.DirectlyAffected))
		for _, e := range report.DirectlyAffected {
			fmt.Printf("     %s\n", e.ID)
		}
		fmt.Printf("  -> %d entities indirectly affected (dependents)\n", len(report.IndirectlyAffected))
		for _, e := range report.IndirectlyAffected {
			fmt.Printf("     %s\n", e.ID)
		}

		rc := retrieval.Config{MaxHops: hops}
		if len(kinds) > 0 {
			rc.AllowedKinds = make(map[graph.RelationKind]bool, len(kinds))
			for _, k := range kinds {
				rc.AllowedKinds[graph.RelationKind(strings.ToUpper(k))] = true
			}
		}
		sg := retrieval.ExtractFromChanges(g, changes, rc)
		fmt.Printf("🕸️  Neighbourhood within %d hops: %d entities, %d relations\n", sg.MaxHops, len(sg.NodeIDs), len(sg.Relations))
		return nil
	},
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages and their file extensions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, lang := range extractor.Languages() {
			a, err := extractor.NewAdapter(lang)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s %s\n", lang, strings.Join(a.Extensions(), " "))
		}
		return nil
	},
}

// workerCmd is started by the process backend; it is not meant to be run
// by hand.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.ServeWorker(cmd.Context(), os.Stdin, os.Stdout, slog.Default())
	},
}
