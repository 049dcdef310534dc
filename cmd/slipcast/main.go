package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipstreamco/slipcast/internal/config"
	"github.com/slipstreamco/slipcast/internal/gateway"
	"github.com/slipstreamco/slipcast/internal/ingest"
)

var rootCmd = &cobra.Command{
	Use:   "slipcast",
	Short: "slipcast - live Melee match commentary",
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Follow a spool directory of replay feeds and narrate every match",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

var castCmd = &cobra.Command{
	Use:   "cast <file>",
	Short: "Narrate a single replay feed and print the match summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runCast,
}

var liveCmd = &cobra.Command{
	Use:   "live <ws-url>",
	Short: "Narrate a live telemetry stream over websocket",
	Args:  cobra.ExactArgs(1),
	RunE:  runLive,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show slipcast status",
	RunE:  runStatus,
}

var styleFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&styleFlag, "style", "", "Commentary style (technical, hype, educational, analytical)")
	rootCmd.AddCommand(watchCmd, castCmd, liveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if styleFlag != "" {
		cfg.Narration.Style = styleFlag
	}
	return cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := cfg.Ingest.WatchDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no watch directory: pass one or set ingest.watchDir / SLIPCAST_WATCH_DIR")
	}

	eng, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	watcher, err := ingest.NewWatcher(dir, eng.Bus())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := watcher.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}()

	return eng.Run(ctx)
}

func runCast(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drain the feed, then stop the engine once the match's end has been
	// processed and delivered.
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	if err := ingest.Cast(args[0], ingest.HandleForPath(args[0]), eng.Bus()); err != nil {
		cancel()
		<-done
		return err
	}

	eng.AwaitIdle(ctx)
	cancel()
	return <-done
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	live := ingest.NewLive(args[0], eng.Bus())
	go func() {
		if err := live.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "live stream error: %v\n", err)
		}
	}()

	return eng.Run(ctx)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set SLIPCAST_API_KEY / ANTHROPIC_API_KEY")
	fmt.Println("  3. Run 'slipcast cast replay.jsonl' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set (templates only)")
	}
	fmt.Printf("Style: %s\n", cfg.Narration.Style)
	fmt.Printf("Coaching: enabled=%v\n", cfg.Coaching.Enabled)
	fmt.Printf("Watch dir: %s\n", orNone(cfg.Ingest.WatchDir))
	fmt.Printf("Console sink: enabled=%v\n", cfg.Sinks.Console.Enabled)
	fmt.Printf("Telegram sink: enabled=%v\n", cfg.Sinks.Telegram.Enabled)

	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
