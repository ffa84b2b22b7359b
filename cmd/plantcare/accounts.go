package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/identity"
	"github.com/spf13/cobra"
)

func newSeedCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the Admin and User roles and the configured admin account",
		Long: `Create the Admin and User roles if they are missing. When admin.email is
set in the config, that account is created with admin.password or, if it
already exists, added to the Admin role without touching its password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := identity.Seed(cmd.Context(), a.store, a.cfg.Admin.Email, a.cfg.Admin.Password); err != nil {
				return err
			}
			if a.cfg.Admin.Email == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Roles ready. Set admin.email to seed an administrator.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Roles ready. %s is an administrator.\n", a.cfg.Admin.Email)
			return nil
		},
	}
}

func newUserCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage web accounts",
	}
	cmd.AddCommand(newUserAddCommand(flags), newUserPasswdCommand(flags))
	return cmd
}

func newUserAddCommand(flags *rootFlags) *cobra.Command {
	var (
		email    string
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account with the User role",
		Example: `  plantcare user add --email ann@example.com --password 'correct horse'
  plantcare user add --email root@example.com --password 'battery staple' --admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := identity.New(a.store, a.cfg.Web.SessionSecret, a.cfg.Web.SecureCookies, a.logger)
			user, err := svc.AddUser(cmd.Context(), email, password, admin)
			if errors.Is(err, db.ErrDuplicate) {
				return fmt.Errorf("an account for %s already exists", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s with roles %v.\n", user.Email, user.Roles)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	cmd.Flags().BoolVar(&admin, "admin", false, "also grant the Admin role")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserPasswdCommand(flags *rootFlags) *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Set a new password for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := identity.New(a.store, a.cfg.Web.SessionSecret, a.cfg.Web.SecureCookies, a.logger)
			err = svc.ResetPassword(cmd.Context(), email, password)
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("no account for %s", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s.\n", email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
