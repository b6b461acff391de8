package commands

import (
	"context"

	"campuschat/internal/bootstrap"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Music catalog maintenance",
	}

	sync := &cobra.Command{
		Use:   "sync <artist-id>...",
		Short: "Fetch artists with their albums and top tracks into the local library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					lib, err := app.Catalog.SyncArtist(ctx, id)
					if err != nil {
						return err
					}
					printSuccess(out, "Synced %s", lib.Artist.Name)
					printField(out, "Albums", len(lib.Albums))
					printField(out, "Singles", len(lib.Singles))
					printField(out, "Tracks", len(lib.Tracks))
				}
				return nil
			})
		},
	}

	purge := &cobra.Command{
		Use:   "purge-cache",
		Short: "Delete cached upstream responses older than the cache TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				n, err := app.Catalog.PurgeCache(ctx)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Purged %d cache entries", n)
				return nil
			})
		},
	}

	catalogCmd.AddCommand(sync, purge)
	return catalogCmd
}
