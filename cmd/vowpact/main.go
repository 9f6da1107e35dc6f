package main

import (
	"context"
	"fmt"
	"os"

	"vowpact/internal/auth"
	"vowpact/internal/config"
	"vowpact/internal/generate"
	"vowpact/internal/logging"
	"vowpact/internal/render"
	"vowpact/internal/service"
	"vowpact/internal/signature"
	"vowpact/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Set via ldflags.
var (
	version = "dev"
	commit  = "none"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vowpact",
	Short: "vowpact - service contracts for wedding vendors",
	Long: `vowpact lets wedding vendors draft service contracts, fill them with
AI-assisted clauses, share them with clients and collect drawn signatures.

Run "vowpact serve" to start the web API. The other commands inspect and
export the same data store from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vowpact %s (commit %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides storage.data_dir)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(contractsCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	store     store.Store
	audit     *logging.AuditLogger
	auth      *auth.Service
	contracts *service.Service
	pdf       *render.ChromeRenderer
}

// openApp wires storage, audit, auth and the contract service. Chrome is
// only launched when a PDF is first requested.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Storage.LogsDir(), cfg.Logging); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		logging.BootError("open %s store in %s: %v", cfg.Storage.Driver, cfg.Storage.DataDir, err)
		return nil, fmt.Errorf("open store: %w", err)
	}
	audit, err := logging.OpenAudit(cfg.Storage.AuditPath())
	if err != nil {
		logging.BootError("open audit log: %v", err)
		st.Close()
		return nil, err
	}
	gen, err := generate.NewGeneratorFromConfig(ctx, cfg)
	if err != nil {
		logging.BootError("init %s generator: %v", cfg.LLM.Provider, err)
		audit.Close()
		st.Close()
		return nil, fmt.Errorf("init generator: %w", err)
	}

	pdf := render.NewChromeRenderer(cfg.PDF, cfg.GetPDFTimeout())
	a := &app{
		cfg:   cfg,
		store: st,
		audit: audit,
		auth:  auth.NewService(st, cfg.GetSessionTTL(), auth.WithAudit(audit)),
		pdf:   pdf,
	}
	a.contracts = service.New(service.Deps{
		Store:     st,
		Generator: gen,
		PDF:       pdf,
		Audit:     audit,
		Limits:    signature.LimitsFromConfig(cfg.Signature),
		BaseURL:   cfg.Server.BaseURL,
		Paper:     cfg.PDF.Paper,
	})
	logging.Boot("app opened (store=%s, llm=%s)", cfg.Storage.Driver, cfg.LLM.Provider)
	logger.Debug("app opened",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("llm", cfg.LLM.Provider))
	return a, nil
}

func (a *app) Close() {
	if err := a.pdf.Shutdown(); err != nil {
		logger.Warn("stop chrome", zap.Error(err))
	}
	if err := a.audit.Close(); err != nil {
		logger.Warn("close audit log", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
	logging.CloseAll()
}
