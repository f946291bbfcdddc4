// Command convoyd is the convoy runtime's entrypoint: it loads a
// config file, assembles every collaborator (storage, LLM/tool/KB/
// graph providers, agents), and serves the chat API surface until
// interrupted, grounded on cmd/hector/main.go's kong-based CLI shape.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/logging"
	"github.com/flowctl/convoy/server"
)

// CLI defines convoyd's subcommands. Unlike the teacher's zero-config
// flag bundle, convoy's config is always file-based per spec.md §6's
// environment-variable list, so every subcommand shares one required
// --config path flag on CLI and ServeCmd itself takes no flags.
type CLI struct {
	Serve         ServeCmd         `cmd:"" help:"Start the chat API server."`
	MigrateCheck  MigrateCheckCmd  `cmd:"" name:"migrate-check" help:"Verify the configured storage schema is reachable."`
	ToolScores    ToolScoresCmd    `cmd:"" name:"tool-scores" help:"Inspect or reset persisted tool scores."`

	Config   string `short:"c" help:"Path to config file." type:"path" required:""`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogJSON  bool   `help:"Emit logs as JSON instead of text." default:"true"`
}

// ServeCmd starts the chat API server.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.store.Close()

	srv := server.New(rt.serverDeps())
	slog.Info("starting convoy", "addr", cfg.Server.Addr, "agents", len(rt.agents))
	return srv.Start(ctx)
}

// MigrateCheckCmd verifies the configured storage driver/DSN is
// reachable and the schema bootstraps cleanly, without starting the
// server — useful in deploy pipelines before a rollout.
type MigrateCheckCmd struct{}

func (c *MigrateCheckCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := buildRuntime(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.store.Close()
	fmt.Println("storage schema OK")
	return nil
}

// ToolScoresCmd prints every tool's current score, or with --reset
// resets every tool's persisted score back to the registry default,
// per spec.md §4.1's scoring model — useful after a bad deploy drove a
// tool's score below MinAvailableScore.
type ToolScoresCmd struct {
	Reset bool `help:"Reset every tool's score to the configured default."`
}

func (c *ToolScoresCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.store.Close()

	if !c.Reset {
		for _, info := range rt.toolReg.List("") {
			fmt.Printf("%s\t%.2f\n", info.Name, info.Score)
		}
		return nil
	}
	for _, info := range rt.toolReg.List("") {
		if err := rt.toolReg.ResetScore(ctx, info.Name); err != nil {
			return fmt.Errorf("reset score for %q: %w", info.Name, err)
		}
	}
	fmt.Println("all tool scores reset")
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("convoyd"),
		kong.Description("convoy multi-agent chat runtime"),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cli.LogLevel))
	format := "json"
	if !cli.LogJSON {
		format = "text"
	}
	slog.SetDefault(logging.New(logging.Options{Format: format, Level: level}))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
