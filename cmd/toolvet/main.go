package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"toolvet/internal/analyzer"
	"toolvet/internal/config"
	"toolvet/internal/contract"
	"toolvet/internal/embedding"
	"toolvet/internal/logging"
	"toolvet/internal/mcp"
	"toolvet/internal/report"
	"toolvet/internal/rules"
	"toolvet/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// analyze flags
	filePath   string
	serverID   string
	serverURL  string
	serverCmd  string
	strictMode bool
	timeoutStr string
	ruleList   []string
	formatStr  string
	noCache    bool

	// history flags
	historyLimit int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "toolvet",
	Short: "toolvet - static analyzer for MCP tool contracts",
	Long: `toolvet inspects the tool contracts an MCP server exposes and reports
the ways they will confuse an agent: missing or broad schemas, unsafe
tool chains, circular dependencies, ambiguous descriptions, sensitive
parameters, and more.

Point it at a live server (http or stdio) or at a saved tools/list dump.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the tool contracts of an MCP server or dump file",
	Example: `  toolvet analyze --file tools.json
  toolvet analyze --url http://localhost:8080/mcp
  toolvet analyze --command "npx my-mcp-server" --strict
  toolvet analyze --server github --format json`,
	RunE: runAnalyze,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the diagnostic rule catalog",
	RunE:  runRules,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent analysis runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "config file path")

	analyzeCmd.Flags().StringVarP(&filePath, "file", "f", "", "analyze a saved tools/list dump (json or yaml)")
	analyzeCmd.Flags().StringVar(&serverID, "server", "", "analyze a server from the config file")
	analyzeCmd.Flags().StringVar(&serverURL, "url", "", "analyze an http MCP server")
	analyzeCmd.Flags().StringVar(&serverCmd, "command", "", "analyze a stdio MCP server by command line")
	analyzeCmd.Flags().BoolVar(&strictMode, "strict", false, "treat warnings as errors")
	analyzeCmd.Flags().StringVar(&timeoutStr, "timeout", "", "overall analysis deadline (e.g. 30s)")
	analyzeCmd.Flags().StringSliceVar(&ruleList, "rules", nil, "rule filter; plain codes allow, -CODE denies")
	analyzeCmd.Flags().StringVarP(&formatStr, "format", "o", "text", "output format: text, json, yaml")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the persistent embedding cache")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")

	rootCmd.AddCommand(analyzeCmd, rulesCmd, historyCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, source, closeLoader, err := buildLoader(cfg)
	if err != nil {
		return err
	}
	defer closeLoader()

	svc, st, closeStore, err := buildEmbeddings(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	timeout, err := cfg.AnalysisTimeout()
	if err != nil {
		return err
	}
	a := analyzer.New(svc, analyzer.Options{
		StrictMode:    cfg.Analysis.Strict,
		Timeout:       timeout,
		RuleSelectors: cfg.Analysis.Rules,
		ConcreteNouns: cfg.Analysis.ConcreteNouns,
	})

	logger.Info("starting analysis", zap.String("source", source))
	result, err := a.AnalyzeServer(ctx, loader)
	if err != nil {
		return err
	}

	rep := report.New(source, result)
	if err := rep.Render(cmd.OutOrStdout(), report.Format(formatStr)); err != nil {
		return err
	}
	if st != nil {
		if err := st.SaveRun(rep.RunID, source, result); err != nil {
			logger.Warn("failed to record run", zap.Error(err))
		}
	}

	if result.Verdict == contract.VerdictFail {
		os.Exit(2)
	}
	return nil
}

// applyFlagOverrides layers CLI flags over the loaded config.
func applyFlagOverrides(cfg *config.Config) {
	if strictMode {
		cfg.Analysis.Strict = true
	}
	if timeoutStr != "" {
		cfg.Analysis.Timeout = timeoutStr
	}
	if len(ruleList) > 0 {
		cfg.Analysis.Rules = ruleList
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
}

// buildLoader resolves the tool source from flags and config, in priority
// order: --file, --url, --command, --server.
func buildLoader(cfg *config.Config) (analyzer.Loader, string, func(), error) {
	noop := func() {}
	switch {
	case filePath != "":
		return &mcp.FileLoader{Path: filePath}, filePath, noop, nil
	case serverURL != "":
		loader, err := mcp.NewServerLoader(mcp.ServerConfig{Protocol: mcp.ProtocolHTTP, BaseURL: serverURL})
		if err != nil {
			return nil, "", nil, err
		}
		return loader, serverURL, func() { _ = loader.Close() }, nil
	case serverCmd != "":
		loader, err := mcp.NewServerLoader(mcp.ServerConfig{Protocol: mcp.ProtocolStdio, Command: serverCmd})
		if err != nil {
			return nil, "", nil, err
		}
		return loader, serverCmd, func() { _ = loader.Close() }, nil
	case serverID != "":
		serverCfg, ok := cfg.Servers[serverID]
		if !ok {
			return nil, "", nil, fmt.Errorf("server %q not found in %s", serverID, configPath)
		}
		loader, err := mcp.NewServerLoader(serverCfg)
		if err != nil {
			return nil, "", nil, err
		}
		return loader, serverID, func() { _ = loader.Close() }, nil
	default:
		return nil, "", nil, fmt.Errorf("nothing to analyze: pass --file, --url, --command, or --server")
	}
}

// buildEmbeddings wires the embedding service and its persistent cache.
// The returned store also records the run history; it is nil when caching
// is disabled or the database cannot be opened.
func buildEmbeddings(cfg *config.Config) (*embedding.Service, *store.Store, func(), error) {
	noop := func() {}
	svc, err := embedding.InitShared(cfg.EmbeddingOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.Cache.Enabled {
		return svc, nil, noop, nil
	}

	st, err := store.Open(cfg.Cache.Path)
	if err != nil {
		// A broken cache degrades to in-memory only.
		logger.Warn("embedding cache unavailable", zap.Error(err))
		return svc, nil, noop, nil
	}
	svc.SetStore(st)
	return svc, st, func() { _ = st.Close() }, nil
}

func runRules(cmd *cobra.Command, args []string) error {
	engine := rules.DefaultEngine()
	infos := make([]report.RuleInfo, 0, len(engine.Rules()))
	for _, r := range engine.Rules() {
		infos = append(infos, report.RuleInfo{
			Code:        r.Code,
			Severity:    r.Severity,
			Name:        r.Name,
			Description: r.Description,
			Behavioral:  r.Check == nil,
		})
	}
	report.RenderRules(cmd.OutOrStdout(), infos)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.RecentRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-19s %3d tools  %2d errors  %2d warnings  %s\n",
			r.RunID, r.Source, r.CreatedAt.Format(time.DateTime), r.ToolCount, r.Errors, r.Warnings, r.Verdict)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
