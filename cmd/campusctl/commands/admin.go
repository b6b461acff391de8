package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"campuschat/internal/bootstrap"
	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/internal/store"
	"campuschat/pkg/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create collections and indexes",
		Long: `Connect to the configured MongoDB database, create any missing collection
and apply every index. Safe to run repeatedly. Also creates the community chat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				out := cmd.OutOrStdout()
				if app.Config.Store.Driver != "mongo" {
					printWarning(out, "Store driver is %q; nothing to migrate", app.Config.Store.Driver)
					return nil
				}
				for _, set := range database.Indexes() {
					printField(out, set.Collection, fmt.Sprintf("%d indexes", len(set.Indexes)))
				}
				if _, err := app.Chats.EnsureCommunity(ctx); err != nil {
					return err
				}
				printSuccess(out, "Database %s is up to date", app.Config.Database.MongoDB.Database)
				return nil
			})
		},
	}
}

func newSeedAdminCmd() *cobra.Command {
	var req services.RegisterRequest

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an administrator or promote an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				user, created, err := ensureUser(ctx, app, req)
				if err != nil {
					return err
				}

				admin := true
				user, err = app.Store.Users.Update(ctx, user.ID, store.UserUpdate{IsAdmin: &admin, UpdatedAt: time.Now()})
				if err != nil {
					return fmt.Errorf("failed to grant admin rights: %w", err)
				}

				out := cmd.OutOrStdout()
				if created {
					printSuccess(out, "Created administrator %s", user.Name)
				} else {
					printSuccess(out, "Promoted %s to administrator", user.Name)
				}
				printUser(out, user)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&req.Class, "class", "Staff", "Class or department")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number in international format")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("phone")
	return cmd
}

// ensureUser returns the user registered under req.Phone, registering it
// when missing.
func ensureUser(ctx context.Context, app *bootstrap.App, req services.RegisterRequest) (*models.User, bool, error) {
	user, err := app.Store.Users.GetByPhone(ctx, models.NormalizePhone(req.Phone))
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up %s: %w", req.Phone, err)
	}

	user, err = app.Auth.Register(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func newUsersCmd() *cobra.Command {
	var adminsOnly bool

	cmd := &cobra.Command{
		Use:   "users [search]",
		Short: "List users, optionally filtered by name, class or phone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				users, err := app.Users.List(ctx, term)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				shown := 0
				for _, u := range users {
					if adminsOnly && !u.IsAdmin {
						continue
					}
					line := fmt.Sprintf("%-24s %-10s %-16s %s", u.Name, u.Class, u.Phone, u.ID)
					switch {
					case u.IsAdmin:
						cyan.Fprintln(out, line+"  admin")
					case u.IsOnline:
						green.Fprintln(out, line)
					default:
						fmt.Fprintln(out, line)
					}
					shown++
				}
				printNote(out, "%d users", shown)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&adminsOnly, "admins", false, "Only list administrators")
	return cmd
}

func newMagicLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "magic-link <phone>",
		Short: "Print the messenger sign-in link for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				user, err := app.Store.Users.GetByPhone(ctx, models.NormalizePhone(args[0]))
				if err != nil {
					return fmt.Errorf("no user with phone %s: %w", args[0], err)
				}

				link, err := app.Auth.BuildMagicLink(ctx, user.ID, user.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				printSuccess(out, "Sign-in link for %s", user.Name)
				printField(out, "Messenger", link.URL)
				printField(out, "Login URL", link.LoginURL)
				printField(out, "Expires", link.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newCallsCmd() *cobra.Command {
	calls := &cobra.Command{
		Use:   "calls",
		Short: "Call maintenance",
	}

	var timeout time.Duration
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Mark calls that rang too long as missed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				ring := timeout
				if ring == 0 {
					ring = app.Config.Calls.RingTimeout
				}
				n, err := app.Calls.SweepUnanswered(ctx, ring)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Marked %d calls as missed (ring timeout %s)", n, ring)
				return nil
			})
		},
	}
	sweep.Flags().DurationVar(&timeout, "timeout", 0, "Ring timeout; defaults to CALL_RING_TIMEOUT")

	calls.AddCommand(sweep)
	return calls
}

func printUser(w io.Writer, u *models.User) {
	printField(w, "ID", u.ID)
	printField(w, "Name", u.Name)
	printField(w, "Class", u.Class)
	printField(w, "Phone", u.Phone)
	printField(w, "Admin", u.IsAdmin)
}
