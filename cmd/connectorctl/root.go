package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drblury/connector"
	loggingpkg "github.com/drblury/connector/internal/runtime/logging"
)

const envPrefix = "CONNECTORCTL"

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "connectorctl",
		Short:         "Publish and subscribe connector samples",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to the connector configuration (YAML)")
	root.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	root.PersistentFlags().Bool("trace", false, "Print write and wait spans to stderr")
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("trace", root.PersistentFlags().Lookup("trace"))

	root.AddCommand(
		newValidateCommand(v),
		newPublishCommand(v),
		newSubscribeCommand(v),
	)
	return root
}

func configPath(v *viper.Viper) (string, error) {
	path := v.GetString("config")
	if path == "" {
		return "", fmt.Errorf("%w: pass --config or set %s_CONFIG", connector.ErrConfigRequired, envPrefix)
	}
	return path, nil
}

func newLogger(cmd *cobra.Command, v *viper.Viper) (connector.ServiceLogger, error) {
	level, err := loggingpkg.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	return connector.NewSlogServiceLogger(slog.New(handler)), nil
}

// openConnector opens participant and returns a func that disposes it and
// flushes pending spans.
func openConnector(cmd *cobra.Command, v *viper.Viper, participant string) (*connector.Connector, func(), error) {
	path, err := configPath(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, v)
	if err != nil {
		return nil, nil, err
	}

	opts := []connector.Option{connector.WithLogger(logger)}
	shutdown := func() {}
	if v.GetBool("trace") {
		tp, err := newTracerProvider(cmd.ErrOrStderr())
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, connector.WithTracerProvider(tp))
		shutdown = func() { shutdownTracer(tp) }
	}

	c, err := connector.NewConnector(commandContext(cmd), participant, path, opts...)
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return c, func() {
		_ = c.Dispose()
		shutdown()
	}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
