// Command supportmesh runs the interactive support console.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hupe1980/supportmesh"
	"github.com/hupe1980/supportmesh/config"
	"github.com/hupe1980/supportmesh/console"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/logging"
)

type flags struct {
	envFile  string
	provider string
	model    string
	name     string
	account  string
	premium  bool
	envHelp  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "supportmesh",
		Short: "Console support desk with triage, handoffs and guarded answers",
		Long: `supportmesh - a conversational support request router.

Every message is classified by a triage handler, annotated into the shared
session context and handed off to the billing, technical or general
specialist. Specialist tools are gated on the session (refunds for premium
users, restarts for technical issues) and every answer passes an output
guardrail before it is shown.

Configuration is read from the environment (prefix SUPPORTMESH_) and an
optional .env file. Without an API key the offline heuristic model is used.

Examples:
  supportmesh
  supportmesh --provider gemini --premium --name Ana --account ACC-42
  supportmesh --env ./prod.env`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.envHelp {
				return config.Usage()
			}
			return run(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.envFile, "env", "", "path to .env file")
	cmd.Flags().StringVar(&f.provider, "provider", "", "model provider: offline, gemini, openai or anthropic")
	cmd.Flags().StringVar(&f.model, "model", "", "provider model id")
	cmd.Flags().StringVar(&f.name, "name", "", "user name (prompted when empty)")
	cmd.Flags().StringVar(&f.account, "account", "", "account id (prompted when empty)")
	cmd.Flags().BoolVar(&f.premium, "premium", false, "mark the user as premium (prompted when not set)")
	cmd.Flags().BoolVar(&f.envHelp, "env-help", false, "list the recognised environment variables")

	return cmd
}

func run(cmd *cobra.Command, f flags) error {
	if f.provider != "" {
		if err := os.Setenv(config.Prefix+"_PROVIDER", f.provider); err != nil {
			return err
		}
	}
	if f.model != "" {
		if err := os.Setenv(config.Prefix+"_MODEL", f.model); err != nil {
			return err
		}
	}

	cfg, err := config.Load(f.envFile)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: level, Pretty: cfg.LogPretty, Output: cmd.ErrOrStderr()})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	mesh, err := supportmesh.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	c := console.New(cmd.InOrStdin(), cmd.OutOrStdout())
	c.Welcome()

	initial := core.SupportFields{IsPremiumUser: f.premium}
	if f.name != "" {
		initial.Name = core.StringPtr(f.name)
	}
	if f.account != "" {
		initial.AccountID = core.StringPtr(f.account)
	}

	fields, err := c.CollectProfile(initial, console.ProfilePrompts{
		Name:    f.name == "",
		Premium: !cmd.Flags().Changed("premium"),
		Account: f.account == "",
	})
	if err != nil {
		return err
	}

	if err := c.Loop(ctx, mesh, mesh.NewSession(fields)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
