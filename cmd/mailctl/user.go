package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailarchive/backend/internal/domain"
)

func newUserCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Maintain the recipient directory",
	}

	var role string
	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Register a recipient so that incoming mail is associated with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch domain.UserRole(role) {
			case domain.RoleUser, domain.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			comps, err := c.components(cmd.Context())
			if err != nil {
				return err
			}
			defer comps.Close()

			user := &domain.User{Email: args[0], Role: domain.UserRole(role)}
			if err := comps.Store.CreateUser(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", user.ID, user.Email)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", string(domain.RoleUser), "Directory role: user or admin")

	cmd.AddCommand(add)
	return cmd
}
