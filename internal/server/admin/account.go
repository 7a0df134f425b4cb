package admin

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/shopkeeper/internal/server/config"
	"github.com/dmitrijs2005/shopkeeper/internal/server/services"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"github.com/spf13/cobra"
)

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(newAccountCreateCommand(rootOpts))
	cmd.AddCommand(newAccountListCommand(rootOpts))
	return cmd
}

func newAccountCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var username, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account, reading the password from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != string(tables.RoleStaff) && role != string(tables.RoleAdmin) {
				return fmt.Errorf("invalid role %q: must be staff or admin", role)
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			if len(password) == 0 {
				return errors.New("empty password")
			}

			rm, db, err := openStorage(cmd.Context(), rootOpts.DSN)
			if err != nil {
				return err
			}
			defer closeDB(db)

			svc := services.NewAccountService(db, rm, &config.Config{})
			acc, err := svc.Create(cmd.Context(), username, password, tables.Role(role))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", acc.UserName, acc.Role, acc.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "n", "", "login name")
	cmd.Flags().StringVarP(&role, "role", "r", string(tables.RoleStaff), "staff or admin")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newAccountListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staff accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rm, db, err := openStorage(cmd.Context(), rootOpts.DSN)
			if err != nil {
				return err
			}
			defer closeDB(db)

			list, err := rm.Accounts(db).List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tROLE\tID\tCREATED")
			for _, a := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.UserName, a.Role, a.ID, a.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}
