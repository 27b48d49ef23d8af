package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	token "github.com/pilab-dev/shadow-token"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ErrNotLive is returned by check when the token is absent, expired or
// lacks the requested role.
var ErrNotLive = errors.New("token is not live")

type timeoutFlags struct {
	session time.Duration
	final   time.Duration
}

func (f *timeoutFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.session, "session-timeout", 0, "sliding timeout (default from config)")
	cmd.Flags().DurationVar(&f.final, "final-timeout", 0, "absolute timeout (default from config)")
}

func (f *timeoutFlags) options() []token.TimeoutOption {
	var opts []token.TimeoutOption
	if f.session > 0 {
		opts = append(opts, token.WithSessionTimeout(f.session))
	}
	if f.final > 0 {
		opts = append(opts, token.WithFinalTimeout(f.final))
	}
	return opts
}

type ownerFlags struct {
	user         string
	tokenContext string
	roles        []string
}

func (f *ownerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "owning user (required)")
	cmd.Flags().StringVar(&f.tokenContext, "context", "", "free form label, e.g. the client the token was issued to")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "role granted to the token, repeatable")
	_ = cmd.MarkFlagRequired("user")
}

func (c *cli) createCmd() *cobra.Command {
	var (
		owner    ownerFlags
		timeouts timeoutFlags
	)
	cmd := &cobra.Command{
		Use:   "create TOKEN",
		Short: "Store a caller chosen token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				value, err := svc.CreateToken(ctx, args[0], owner.tokenContext, owner.user, owner.roles, timeouts.options()...)
				if err != nil {
					return fmt.Errorf("failed to create token: %w", err)
				}
				fmt.Fprintln(out, value)
				return nil
			})
		},
	}
	owner.register(cmd)
	timeouts.register(cmd)
	return cmd
}

func (c *cli) issueCmd() *cobra.Command {
	var (
		owner    ownerFlags
		timeouts timeoutFlags
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Store a token generated by the configured TOKEN_GENERATOR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				value, err := svc.IssueToken(ctx, owner.tokenContext, owner.user, owner.roles, timeouts.options()...)
				if err != nil {
					return fmt.Errorf("failed to issue token: %w", err)
				}
				fmt.Fprintln(out, value)
				return nil
			})
		},
	}
	owner.register(cmd)
	timeouts.register(cmd)
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	var (
		role  string
		touch bool
	)
	cmd := &cobra.Command{
		Use:   "check TOKEN",
		Short: "Check that a token is live, optionally for a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				value, err := svc.CheckToken(ctx, args[0], role, touch)
				if err != nil {
					return err
				}
				if value == "" {
					return fmt.Errorf("%w: %s", ErrNotLive, args[0])
				}
				fmt.Fprintln(out, value)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role the token must carry")
	cmd.Flags().BoolVar(&touch, "touch", false, "refresh the token when it is live")
	return cmd
}

func (c *cli) touchCmd() *cobra.Command {
	var timeouts timeoutFlags
	cmd := &cobra.Command{
		Use:   "touch TOKEN",
		Short: "Refresh the expirations of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				value, err := svc.TouchToken(ctx, args[0], timeouts.options()...)
				if err != nil {
					return fmt.Errorf("failed to touch token: %w", err)
				}
				fmt.Fprintln(out, value)
				return nil
			})
		},
	}
	timeouts.register(cmd)
	return cmd
}

// tokenView is the YAML shape printed by get.
type tokenView struct {
	Token           string   `yaml:"token"`
	Context         string   `yaml:"context,omitempty"`
	User            string   `yaml:"user"`
	Roles           []string `yaml:"roles,omitempty"`
	Created         string   `yaml:"created"`
	Updated         string   `yaml:"updated"`
	Expiration      string   `yaml:"expiration"`
	FinalExpiration string   `yaml:"finalExpiration"`
	Live            bool     `yaml:"live"`
}

func newTokenView(t *domain.Token, now time.Time) tokenView {
	format := func(ms int64) string { return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano) }
	return tokenView{
		Token:           t.Token,
		Context:         t.Context,
		User:            t.User,
		Roles:           t.Roles,
		Created:         format(t.Created),
		Updated:         format(t.Updated),
		Expiration:      format(t.Expiration),
		FinalExpiration: format(t.FinalExpiration),
		Live:            t.IsLive(now),
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get TOKEN",
		Short: "Print the stored record of a token, live or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				record, err := svc.GetToken(ctx, args[0])
				if err != nil {
					return err
				}
				raw, err := yaml.Marshal(newTokenView(record, time.Now()))
				if err != nil {
					return err
				}
				_, err = out.Write(raw)
				return err
			})
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete TOKEN",
		Short: "Delete a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				if _, err := svc.DeleteToken(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to delete token: %w", err)
				}
				fmt.Fprintln(out, "deleted")
				return nil
			})
		},
	}
}

func (c *cli) deleteUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user USER",
		Short: "Delete every token of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				n, err := svc.DeleteUserTokens(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to delete user tokens: %w", err)
				}
				fmt.Fprintf(out, "deleted %d\n", n)
				return nil
			})
		},
	}
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete all tokens past their sliding expiration once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *token.Service, out io.Writer) error {
				ran, err := svc.DeleteExpiredTokens(ctx)
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				if !ran {
					fmt.Fprintln(out, "sweep already in flight")
					return nil
				}
				fmt.Fprintln(out, "swept")
				return nil
			})
		},
	}
}
