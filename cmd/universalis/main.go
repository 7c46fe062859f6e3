// Command universalis runs the simulation engine.
//
// Usage:
//
//	universalis run --config universalis.yaml
//	universalis compile --scenario wildfire --worlds ./worlds --scenarios ./scenarios
//	universalis validate --config universalis.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/geoscrai/universalis/pkg/archon"
	"github.com/geoscrai/universalis/pkg/config"
	"github.com/geoscrai/universalis/pkg/embedder"
	"github.com/geoscrai/universalis/pkg/engine"
	"github.com/geoscrai/universalis/pkg/llms"
	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/memory"
	"github.com/geoscrai/universalis/pkg/scenario"
	"github.com/geoscrai/universalis/pkg/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run the simulation loop."`
	Compile  CompileCmd  `cmd:"" help:"Compile a scenario into an initial world state."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("universalis version %s\n", version)
	return nil
}

// RunCmd runs the simulation loop until interrupted.
type RunCmd struct {
	Steps int `help:"Run a fixed number of ticks instead of looping." default:"0"`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	bank, cleanup, err := buildBank(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	e, err := engine.New(cfg.Simulation.ID, engine.Options{
		DBPath:           cfg.State.Path,
		Bank:             bank,
		TickInterval:     cfg.TickInterval(),
		PerceptionRadius: cfg.Simulation.PerceptionRadius,
	})
	if err != nil {
		return err
	}
	defer e.Shutdown()

	models := llms.NewModelRegistry()
	model, err := models.RegisterFromConfig("archon", cfg.LLMClientConfig())
	if err != nil {
		return fmt.Errorf("building language model: %w", err)
	}
	a, err := archon.New(model, e.Store(), archon.Config{PerceptionRadius: cfg.Simulation.PerceptionRadius})
	if err != nil {
		return err
	}
	if err := e.AttachArchon(a); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.GetLogger().Info("Shutting down...")
		cancel()
	}()

	if c.Steps > 0 {
		for i := 0; i < c.Steps; i++ {
			result, err := e.Step(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("cycle %d: %s\n", result.Cycle, result.Summary)
		}
		return nil
	}
	return e.RunLoop(ctx)
}

// buildBank wires the memory bank from config; a missing embedding endpoint
// degrades to the deterministic hash embedder.
func buildBank(cfg *config.Config) (*memory.Bank, func(), error) {
	provider, err := vector.NewChromemProvider(cfg.VectorConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("opening vector store: %w", err)
	}

	var embed embedder.Embedder
	if cfg.LLM.EmbeddingModel != "" {
		embed, err = embedder.NewOpenAIEmbedder(cfg.EmbedderConfig())
		if err != nil {
			provider.Close()
			return nil, nil, fmt.Errorf("building embedder: %w", err)
		}
	} else {
		logger.GetLogger().Warn("No embedding model configured, using deterministic hash embedder")
		embed = embedder.NewHashEmbedder(cfg.Memory.Dimension)
	}

	bank, err := memory.NewBank(provider, embed, cfg.Simulation.ID, cfg.Memory.Table)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	return bank, func() { provider.Close() }, nil
}

// CompileCmd compiles a scenario into an initial world state and persists it.
type CompileCmd struct {
	Scenario  string `arg:"" help:"Scenario id to compile."`
	World     string `help:"World id override (defaults to the scenario's world reference)."`
	Worlds    string `help:"Directory of .world.json files." default:"worlds" type:"path"`
	Scenarios string `help:"Directory of .scenario.json files." default:"scenarios" type:"path"`
}

func (c *CompileCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	result, err := scenario.NewPipeline(c.Worlds, c.Scenarios).Compile(c.Scenario, c.World)
	if err != nil {
		return err
	}
	for _, warning := range result.Warnings {
		logger.GetLogger().Warn(warning)
	}

	e, err := engine.New(result.WorldState.SimulationID, engine.Options{DBPath: cfg.State.Path})
	if err != nil {
		return err
	}
	defer e.Shutdown()
	if err := e.SaveAdjudicatedState(result.WorldState); err != nil {
		return err
	}

	fmt.Printf("compiled %s: %d actors, %d assets at cycle %d\n",
		c.Scenario, len(result.WorldState.Actors), len(result.WorldState.Assets),
		result.WorldState.Environment.Cycle)
	return nil
}

// ValidateCmd validates a configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("universalis"),
		kong.Description("Multi-agent simulation engine"),
		kong.UsageOnError(),
	)

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	level, _ := logger.ParseLevel(cli.LogLevel)
	logger.Init(level, os.Stderr, "simple")

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
