package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hemiaoio/android-auto-test/internal/config"
	"github.com/hemiaoio/android-auto-test/internal/engine"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Agent Engine until SIGINT/SIGTERM",
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "bind host, overrides config and AGENT_HOST")
	cmd.Flags().Int("control-port", 0, "control channel port, overrides config and AGENT_CONTROL_PORT")
	cmd.Flags().Int("binary-port", 0, "binary channel port, overrides config and AGENT_BINARY_PORT")
	cmd.Flags().Int("event-port", 0, "event channel port, overrides config and AGENT_EVENT_PORT")
	cmd.Flags().String("auth-token", "", "bearer token, overrides config and AGENT_AUTH_TOKEN")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath(cmd))
	if err != nil {
		return err
	}
	applyServeFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	e := engine.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("agentd: received signal=%v, shutting down", sig)

	e.Stop()
	return nil
}

// applyServeFlagOverrides layers explicit flags, then environment
// variables, over the loaded config, mirroring the teacher's
// os.Getenv-backed override pattern generalized to the three-port
// transport.
func applyServeFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v := envOrFlagString(cmd, "host", "AGENT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envOrFlagInt(cmd, "control-port", "AGENT_CONTROL_PORT"); v != 0 {
		cfg.ControlPort = v
	}
	if v := envOrFlagInt(cmd, "binary-port", "AGENT_BINARY_PORT"); v != 0 {
		cfg.BinaryPort = v
	}
	if v := envOrFlagInt(cmd, "event-port", "AGENT_EVENT_PORT"); v != 0 {
		cfg.EventPort = v
	}
	if v := envOrFlagString(cmd, "auth-token", "AGENT_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
}

func envOrFlagString(cmd *cobra.Command, flag, envKey string) string {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}
	return os.Getenv(envKey)
}

func envOrFlagInt(cmd *cobra.Command, flag, envKey string) int {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetInt(flag)
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
