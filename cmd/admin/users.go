package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/tenant-billing/internal/config"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	adminService "github.com/jwalitptl/tenant-billing/internal/service/admin"
	auditService "github.com/jwalitptl/tenant-billing/internal/service/audit"
	"github.com/jwalitptl/tenant-billing/pkg/security"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create the first platform admin",
	Long: `Create the platform admin user, the platform organization and the
PLATFORM_ADMIN membership. Refuses to run when a platform admin exists.

Credentials come from --email/--password or ADMIN_EMAIL/ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		return withStore(cmd.Context(), func(cfg *config.Config, store repository.Store) error {
			if email == "" {
				email = cfg.Admin.Email
			}
			if password == "" {
				password = cfg.Admin.Password
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}
			if err := newAdminService(cfg, store).CreatePlatformAdmin(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "platform admin %s created\n", email)
			return nil
		})
	},
}

var promoteAdminCmd = &cobra.Command{
	Use:   "promote-admin",
	Short: "Grant PLATFORM_ADMIN to an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			return errors.New("--email is required")
		}

		return withStore(cmd.Context(), func(cfg *config.Config, store repository.Store) error {
			if err := newAdminService(cfg, store).PromoteAdmin(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now a platform admin\n", email)
			return nil
		})
	},
}

func init() {
	createAdminCmd.Flags().String("email", "", "admin email (defaults to ADMIN_EMAIL)")
	createAdminCmd.Flags().String("password", "", "admin password (defaults to ADMIN_PASSWORD)")
	promoteAdminCmd.Flags().String("email", "", "email of the user to promote")
}

func newAdminService(cfg *config.Config, store repository.Store) *adminService.Service {
	return adminService.NewService(
		store,
		auditService.NewService(store),
		security.NewBcryptHasher(bcrypt.DefaultCost),
		cfg.Billing.Period(),
	)
}

