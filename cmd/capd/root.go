package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"capd/internal/app"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := rootOptions{}

	root := &cobra.Command{
		Use:           "capd",
		Short:         "Publish integration routes as remotely invocable tools and resources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional config file (yaml, json or toml)")

	client := clientOptions{}
	root.AddCommand(
		newServeCmd(&opts),
		newValidateCmd(),
		newInvokeCmd(&client),
		newAcquireCmd(&client),
		newDescribeCmd(&client),
		newProvisionCmd(&client),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Register, acquire the bundle, publish the catalog and serve invocations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := app.NewViper(cmd.Flags(), opts.configPath)
			if err != nil {
				return err
			}
			cfg, err := app.LoadConfig(v)
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			if err := app.Serve(ctx, cfg, logger); err != nil {
				logger.Error("serve failed", zap.Error(err))
				return exitSilent(1)
			}
			return nil
		},
	}
	app.BindFlags(cmd.Flags())
	return cmd
}

func newValidateCmd() *cobra.Command {
	cfg := app.ValidateConfig{}
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse a local bundle without contacting the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := app.NewLogger("warn")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			summary, err := app.Validate(cfg, logger)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(summary)
			}
			fmt.Printf("routes=%d tools=%d resources=%d dependencies=%d\n",
				summary.Routes, summary.Tools, summary.Resources, summary.Dependencies)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.RoutesPath, "routes", "", "routes definition file")
	cmd.Flags().StringVar(&cfg.RulesPath, "rules", "", "rule specification file")
	cmd.Flags().StringVar(&cfg.DependenciesPath, "dependencies", "", "dependencies manifest file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("capd %s (%s)\n", app.Version, app.Build)
		},
	}
}
