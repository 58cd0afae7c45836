package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/agent-backend/internal/auth"
	"github.com/suPer8Hu/agent-backend/internal/models"
)

func newUserCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserCreateCmd(flags), newUserListCmd(flags))
	return cmd
}

func newUserCreateCmd(flags *rootFlags) *cobra.Command {
	var (
		password string
		role     string
		email    string
	)
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			p := auth.CreateAccountParams{Username: args[0], Password: password, Role: role}
			if email != "" {
				p.Email = &email
			}
			u, err := a.Auth.CreateAccount(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), flags.format, u, func(w io.Writer) {
				fmt.Fprintf(w, "created %s (id %d, role %s)\n", u.Username, u.ID, u.Role)
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (at least 6 characters)")
	cmd.Flags().StringVarP(&role, "role", "r", models.RoleUser, "Role: user or admin")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.Auth.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), flags.format, users, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tACTIVE\tLAST LOGIN")
				for _, u := range users {
					last := "-"
					if u.LastLogin != nil {
						last = u.LastLogin.Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Role, u.IsActive, last)
				}
				_ = tw.Flush()
			})
		},
	}
}
