package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/budget"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/dispatch"
	"github.com/parley-ai/parley/internal/engine"
	"github.com/parley-ai/parley/internal/eventlog"
	"github.com/parley-ai/parley/internal/memory"
	"github.com/parley-ai/parley/internal/provider"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/token"
)

var (
	cfgFile          string
	modelsFlag       []string
	conversationFlag string
	filesFlag        []string
	noMemoryFlag     bool
	showCostFlag     bool
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Multi-model AI discussion engine",
		Long: "parley poses one question to several LLM backends in parallel and returns\n" +
			"raw answers, a synthesized discussion, or a single consensus recommendation,\n" +
			"keeping each request inside the target model's context window.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/parley/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVarP(&modelsFlag, "models", "m", nil, "models to consult (names or aliases, comma-separated)")
	rootCmd.PersistentFlags().StringVarP(&conversationFlag, "conversation", "C", "", "conversation id for multi-turn continuity")
	rootCmd.PersistentFlags().StringSliceVarP(&filesFlag, "file", "f", nil, "attach file contents as context (compressed to fit each model)")
	rootCmd.PersistentFlags().BoolVar(&noMemoryFlag, "no-memory", false, "disable on-disk conversation storage")
	rootCmd.PersistentFlags().BoolVar(&showCostFlag, "cost", false, "print a cost summary after the run")

	// Subcommands
	rootCmd.AddCommand(newDiscussCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newConsensusCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if len(modelsFlag) > 0 {
		cfg.Models = modelsFlag
	}
	if noMemoryFlag {
		cfg.Memory.Disabled = true
	}
	return cfg
}

// buildClients constructs one backend client per provider family that has
// credentials configured.
func buildClients(cfg *config.Config) map[string]provider.Provider {
	defaults := config.LoadProviderDefaults()
	clients := make(map[string]provider.Provider)

	for name, pc := range cfg.Providers {
		if pc == nil || pc.APIKey == "" {
			continue
		}
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = defaults[name].BaseURL
		}

		switch name {
		case "anthropic":
			clients["anthropic"] = provider.NewAnthropicProvider(pc.APIKey)
		case "gemini":
			// Gemini is served through its OpenAI-compatible endpoint; the
			// registry knows these models as the "google" family.
			clients["google"] = provider.NewOpenAIProvider(pc.APIKey, baseURL)
		default:
			clients[name] = provider.NewOpenAIProvider(pc.APIKey, baseURL)
		}
	}
	return clients
}

// buildEngine wires the full stack from configuration. The returned cleanup
// closes the conversation store and event log.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	pricing := make(map[string]registry.PricingOverride, len(cfg.Pricing))
	for model, p := range cfg.Pricing {
		pricing[model] = registry.PricingOverride{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
	}
	reg := registry.New(pricing)

	cacheSize := cfg.EstimatorCacheSize
	if cacheSize <= 0 {
		cacheSize = token.DefaultCacheCapacity
	}
	est := token.NewEstimator(reg, cacheSize)

	budgets := budget.NewManager(reg, est, budget.Config{
		ResponseReservePct: cfg.Budget.ResponseReservePct,
		ReserveCap:         cfg.Budget.ReserveCap,
		HistoryFloor:       cfg.Budget.HistoryFloor,
		FilesFloor:         cfg.Budget.FilesFloor,
	})

	clients := buildClients(cfg)
	if len(clients) == 0 {
		return nil, nil, fmt.Errorf(
			"no provider credentials configured.\n" +
				"Set an API key via:\n" +
				"  - environment: ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENROUTER_API_KEY, ...\n" +
				"  - config file: providers.<name>.api_key\n" +
				"  - run: parley init")
	}
	router := provider.NewRouter(reg, clients)

	var store memory.Store = memory.NullStore{}
	if !cfg.Memory.Disabled {
		path := cfg.Memory.Path
		if path == "" {
			p, err := memory.DefaultDBPath()
			if err != nil {
				return nil, nil, fmt.Errorf("conversation db path: %w", err)
			}
			path = p
		}
		s, err := memory.OpenSQLiteStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open conversation store: %w", err)
		}
		store = s
	}

	var opts []dispatch.Option
	if cfg.Dispatch.Workers > 0 {
		opts = append(opts, dispatch.WithWorkers(cfg.Dispatch.Workers))
	}
	if cfg.Dispatch.TimeoutSeconds > 0 {
		opts = append(opts, dispatch.WithTimeout(time.Duration(cfg.Dispatch.TimeoutSeconds)*time.Second))
	}

	var log *eventlog.Logger
	if cfg.EventLog {
		id := conversationFlag
		if id == "" {
			id = uuid.New().String()
		}
		l, err := eventlog.New(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: event log disabled: %v\n", err)
		} else {
			log = l
		}
	}

	eng := engine.New(engine.Options{
		Router:     router,
		Budgets:    budgets,
		Registry:   reg,
		Dispatcher: dispatch.New(opts...),
		Store:      store,
		Log:        log,
		HostModel:  cfg.HostModel,
	})

	cleanup := func() {
		_ = store.Close()
		if log != nil {
			log.Close()
		}
	}
	return eng, cleanup, nil
}

// readAttachedFiles concatenates the contents of --file arguments, each
// prefixed with its path so models can tell the sources apart.
func readAttachedFiles(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read attached file: %w", err)
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n", path, data)
	}
	return sb.String(), nil
}

// printResult writes the engine's answer plus any warnings to stdout/stderr.
func printResult(eng *engine.Engine, resp *engine.Response) {
	fmt.Println(resp.Content)
	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	if showCostFlag {
		fmt.Fprintf(os.Stderr, "\n%s\n", eng.Costs().Summary())
	}
}
