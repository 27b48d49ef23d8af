// Package cmd holds the tokenctl commands. tokenctl works directly on the
// configured token storage, the same way tokend does.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	token "github.com/pilab-dev/shadow-token"
	"github.com/pilab-dev/shadow-token/config"
	"github.com/pilab-dev/shadow-token/internal/app"
	"github.com/pilab-dev/shadow-token/log"
	"github.com/pilab-dev/shadow-token/tracing"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// AppName is the name of the binary.
const AppName = "tokenctl"

// opener opens the token service for one command run. The returned func
// releases it.
type opener func(ctx context.Context, cfg *config.ServerConfig, logger log.Logger) (*token.Service, func(context.Context) error, error)

func openService(ctx context.Context, cfg *config.ServerConfig, logger log.Logger) (*token.Service, func(context.Context) error, error) {
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := app.NewService(cfg, store, logger, nil)
	if err != nil {
		_ = store.Close(ctx)
		return nil, nil, err
	}
	return svc, func(ctx context.Context) error {
		var result *multierror.Error
		if err := svc.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := store.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
		return result.ErrorOrNil()
	}, nil
}

type cli struct {
	cfgFile    string
	collection string
	verbose    bool
	trace      bool

	open   opener
	logger log.Logger
}

// Execute runs tokenctl with the process arguments.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the tokenctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(openService)
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open, logger: log.Nop()}

	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "tokenctl manages session tokens",
		Long:          `A command-line interface for creating, checking, touching and deleting session tokens and for sweeping expired ones.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if c.verbose {
				level = zerolog.DebugLevel
			}
			c.logger = log.FromZerolog(zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger())
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.cfgFile, "config", "",
		"config file (default is token_config.yaml in /etc/shadow-token, $HOME/.shadow-token or .)")
	rootCmd.PersistentFlags().StringVar(&c.collection, "collection", "", "token collection name (overrides COLLECTION)")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&c.trace, "trace", false, "print OpenTelemetry spans to stdout")

	rootCmd.AddCommand(
		c.createCmd(),
		c.issueCmd(),
		c.checkCmd(),
		c.touchCmd(),
		c.getCmd(),
		c.deleteCmd(),
		c.deleteUserCmd(),
		c.sweepCmd(),
	)
	return rootCmd
}

// run opens the service, runs fn inside a span named after the command and
// releases the service again.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, svc *token.Service, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(c.cfgFile)
	if err != nil {
		return err
	}
	if c.collection != "" {
		cfg.Collection = c.collection
	}

	if c.trace {
		tp, err := tracing.InitTracerProvider(AppName)
		if err != nil {
			return fmt.Errorf("failed to initialize TracerProvider: %w", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				c.logger.Error(ctx, "Error shutting down TracerProvider", err)
			}
		}()
	}

	svc, release, err := c.open(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(ctx); err != nil {
			c.logger.Error(ctx, "Failed to close token storage", err)
		}
	}()

	ctx, span := tracing.Tracer.Start(ctx, AppName+"."+cmd.Name())
	defer span.End()

	return fn(ctx, svc, cmd.OutOrStdout())
}
