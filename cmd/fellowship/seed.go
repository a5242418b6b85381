package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fellowship/internal/adapters/storage"
	"fellowship/internal/application/orchestrators"
)

type seedAdminOptions struct {
	email     string
	password  string
	firstName string
	lastName  string
}

// seedAdminCommand creates the first administrator, or promotes and
// reactivates an existing member with that email. Flags override
// ADMIN_EMAIL and ADMIN_PASSWORD.
func seedAdminCommand() *cobra.Command {
	opts := &seedAdminOptions{}
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or promote the administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			input := orchestrators.SeedAdminInput{
				Email:     cfg.AdminEmail,
				Password:  cfg.AdminPassword,
				FirstName: opts.firstName,
				LastName:  opts.lastName,
			}
			if opts.email != "" {
				input.Email = opts.email
			}
			if opts.password != "" {
				input.Password = opts.password
			}

			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close(db) }()
			stores := newStores(db)

			res, err := orchestrators.ExecuteSeedAdmin(cmd.Context(), input, orchestrators.SeedAdminDeps{
				MemberStore: stores.Members,
				Auditor:     &orchestrators.Auditor{Store: stores.Audit, Log: log},
				GenerateID:  uuid.NewString,
				Now:         time.Now,
				Log:         log,
			})
			if err != nil {
				return err
			}
			verb := "updated"
			if res.Created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s %s (%s)\n", res.Member.Email, verb, res.Member.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "admin email (default $ADMIN_EMAIL)")
	cmd.Flags().StringVar(&opts.password, "password", "", "admin password (default $ADMIN_PASSWORD)")
	cmd.Flags().StringVar(&opts.firstName, "first-name", "", "first name for a new account")
	cmd.Flags().StringVar(&opts.lastName, "last-name", "", "last name for a new account")
	return cmd
}
