// Package commands provides the CLI commands for Loom.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/loom-engine/loom/internal/agent"
	"github.com/loom-engine/loom/internal/config"
	"github.com/loom-engine/loom/internal/executor"
	"github.com/loom-engine/loom/internal/logging"
	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/internal/provider"
	"github.com/loom-engine/loom/internal/storage"
	"github.com/loom-engine/loom/internal/tokenest"
	"github.com/loom-engine/loom/internal/worldbook"
	"github.com/loom-engine/loom/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs  bool
	logLevel   string
	logFile    bool
	showConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom - tree-structured multi-provider LLM chat engine",
	Long: `Loom is a chat engine built around a branching conversation tree:
every reply can fork, every edit is undoable, and the context sent to the
model is assembled by a deterministic pipeline.

Run 'loom chat' to converse from the terminal, or 'loom serve' to expose
the engine over HTTP for a UI.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is a convenience for provider keys in development.
		_ = godotenv.Load()

		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			// Quiet by default: terminal output belongs to the chat.
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)

		if showConfig {
			dir, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
				os.Exit(1)
			}
			cfg, err := config.Load(dir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}
			jsonData, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(jsonData))
			os.Exit(0)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to the state directory")
	rootCmd.PersistentFlags().BoolVar(&showConfig, "show-config", false, "Print the merged configuration and exit")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// engine bundles everything a command needs to drive the core.
type engine struct {
	cfg      *types.Config
	service  *executor.Service
	agents   *agent.Registry
	registry *provider.Registry
}

// buildEngine wires the full stack from the merged config: storage,
// registries, token estimator, worldbook index, and the session service.
func buildEngine(ctx context.Context) (*engine, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store := storage.New(cfg.DataDir)
	sessions := storage.NewSessionStore(store)
	agents, err := agent.NewRegistry(ctx, store, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	registry := provider.NewRegistry(cfg)

	var wbIndex *worldbook.Index
	wbEnabled := false
	if cfg.Worldbook != nil && cfg.Worldbook.Enabled {
		entries := make([]worldbook.Entry, 0, len(cfg.Worldbook.Entries))
		for _, e := range cfg.Worldbook.Entries {
			entries = append(entries, worldbook.Entry{
				ID:           e.ID,
				Keywords:     e.Keywords,
				Mode:         worldbook.ActivationMode(e.Mode),
				Role:         e.Role,
				Content:      e.Content,
				Strategy:     e.Strategy,
				TurnInterval: e.TurnInterval,
			})
		}
		wbIndex, err = worldbook.NewIndex(entries)
		if err != nil {
			return nil, fmt.Errorf("compile worldbook: %w", err)
		}
		wbEnabled = true
	}

	deps := executor.Deps{
		IDGen: func() string { return ulid.Make().String() },
		Clock: func() int64 { return time.Now().UnixMilli() },
		ClientFor: func(ctx context.Context, modelID string) (provider.Client, error) {
			client, err := registry.ClientFor(ctx, modelID)
			if err != nil {
				return nil, err
			}
			return provider.WithRetry(client), nil
		},
		Persist: func(ctx context.Context, s *types.Session) error {
			return sessions.Save(ctx, s)
		},
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		FlushInterval:  time.Duration(cfg.StreamFlushIntervalMs) * time.Millisecond,

		CapabilitiesFor: func(modelID string) pipeline.ModelCapabilities {
			if m, ok := registry.Lookup(modelID); ok {
				return m.Capabilities()
			}
			return pipeline.ModelCapabilities{}
		},

		TokenEstimator:            tokenest.NewTiktokenEstimator(),
		Worldbook:                 wbIndex,
		WorldbookEnabled:          wbEnabled,
		GlobalRegexRules:          cfg.GlobalRegexRules,
		ForceTranscribeAfterDepth: cfg.ForceTranscribeAfterDepth,
	}

	return &engine{
		cfg:      cfg,
		service:  executor.NewService(executor.New(deps), sessions, agents),
		agents:   agents,
		registry: registry,
	}, nil
}
