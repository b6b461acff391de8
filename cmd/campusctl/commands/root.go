package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"campuschat/internal/bootstrap"
	"campuschat/internal/config"
	"campuschat/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// newApp builds the services a command works on. Tests replace it.
var newApp = bootstrap.New

type options struct {
	envFile string
	verbose bool
}

// NewRootCmd returns the campusctl command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "campusctl",
		Short: "Administer a Campus Chat deployment",
		Long: `campusctl performs maintenance tasks against the store configured in the
environment: schema migration, admin seeding, magic link hand-off, catalog
syncing and call sweeps.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read %s: %w", opts.envFile, err)
			}
			logger.Init()
			logger.SetOutput(cmd.ErrOrStderr())
			if !opts.verbose {
				logger.SetLevel(logger.WarnLevel)
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show service logs")

	root.AddCommand(
		newMigrateCmd(),
		newSeedAdminCmd(),
		newUsersCmd(),
		newMagicLinkCmd(),
		newCatalogCmd(),
		newCallsCmd(),
	)
	return root
}

// Execute runs the root command and prints a failure to stderr.
func Execute(version string) error {
	root := NewRootCmd(version)
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		return err
	}
	return nil
}

// openApp loads configuration and connects the services. The caller must
// Close the returned app.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg := config.Load()
	cfg.ApplyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return newApp(ctx, cfg)
}

// withApp runs fn with a connected app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColor()
	}
}
