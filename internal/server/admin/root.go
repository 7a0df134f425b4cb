// Package admin implements shopctl, the operator CLI for the sync server:
// schema migrations and staff account management.
package admin

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/shopkeeper/internal/server"
	"github.com/dmitrijs2005/shopkeeper/internal/server/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DSN string
}

// openStorage is a seam for tests.
var openStorage = server.OpenStorage

// readPassword reads a password from the terminal without echo, or a single
// line when input is not a terminal.
var readPassword = func(in io.Reader, out io.Writer) ([]byte, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return pw, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// NewRootCommand creates the shopctl root command.
func NewRootCommand() *cobra.Command {
	defaults := &config.Config{}
	defaults.LoadDefaults()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Shopkeeper sync server administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.DSN, "dsn", "d", defaults.DatabaseDSN, "database DSN")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))

	return cmd
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStorage(cmd.Context(), rootOpts.DSN)
			if err != nil {
				return err
			}
			closeDB(db)
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

// Execute runs shopctl with os.Args and returns the process exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}
