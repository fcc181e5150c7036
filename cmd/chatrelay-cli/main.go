// Package main provides the chatrelay-cli command-line tool for operating the
// chat relay: validating config files and inspecting or flushing the shared
// Redis cache without going through the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chatrelay "github.com/quill-labs/chat-relay"
	"github.com/quill-labs/chat-relay/internal/cache"
	"github.com/quill-labs/chat-relay/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:     "chatrelay-cli",
		Short:   "Operate the chat relay from the command line",
		Version: version.String(),
	}

	root.AddCommand(
		newValidateCmd(),
		newCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a relay configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := chatrelay.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := chatrelay.ApplyEnv(cfg); err != nil {
				return err
			}
			if err := chatrelay.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			ttl, _ := cfg.Cache.CacheTTL()
			fmt.Println("✓ Config is valid")
			fmt.Printf("  Model:     %s\n", cfg.Inference.Model)
			fmt.Printf("  Base URL:  %s\n", cfg.Inference.BaseURL)
			fmt.Printf("  Cache:     %s\n", cacheSummary(*cfg))
			fmt.Printf("  Cache TTL: %s\n", ttl)
			return nil
		},
	}
}

func cacheSummary(cfg chatrelay.Config) string {
	if cfg.Cache.Backend == "memory" || (cfg.Cache.Backend == "" && cfg.Cache.Addr == "") {
		return "memory"
	}
	addr := cfg.Cache.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return "redis " + addr
}

func newCacheCmd() *cobra.Command {
	var (
		addr      string
		password  string
		db        int
		namespace string
	)

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or flush the relay's Redis cache",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "localhost:6379", "redis address")
	cmd.PersistentFlags().StringVar(&password, "password", "", "redis password")
	cmd.PersistentFlags().IntVar(&db, "db", 0, "redis database index")
	cmd.PersistentFlags().StringVar(&namespace, "namespace", cache.DefaultNamespace, "key namespace")

	connect := func(cmd *cobra.Command) (*cache.Redis, error) {
		return cache.NewRedis(cmd.Context(), cache.RedisOptions{
			Addr:      addr,
			Password:  password,
			DB:        db,
			Namespace: namespace,
		})
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached entry count for the relay namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Keys: %d\n", stats.Keys)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached response in the relay namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cleared, err := store.ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %d entries\n", cleared)
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
