package cli

import (
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/spf13/cobra"
)

var errSignupRejected = errors.New("signup rejected")

func newSignupCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account",
		Long:  `Create an account. The password and its confirmation are read from the terminal without echo.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := GetPassword(cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			confirm, err := GetPassword(cmd.OutOrStdout(), "Confirm Password: ")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(confirm)

			e, err := g.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			err = e.sessions.Signup(cmd.Context(), args[0], string(password), string(confirm))

			var ve *common.ValidationError
			if errors.As(err, &ve) {
				for _, msg := range ve.Messages() {
					cmd.PrintErrln(msg)
				}
				return errSignupRejected
			}
			if err != nil {
				return err
			}

			cmd.Println("User created successfully")
			return nil
		},
	}
}

func newForceLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "force-logout <email>",
		Short: "Clear the active session of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.sessions.ForceLogout(cmd.Context(), args[0]); err != nil {
				return err
			}

			cmd.Println("Session cleared")
			return nil
		},
	}
}

func newShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <email>",
		Short: "Show an account and whether it has a live session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			info, err := e.sessions.Lookup(cmd.Context(), args[0])
			if errors.Is(err, common.ErrorNotFound) {
				cmd.Printf("%s: no such account\n", args[0])
				return err
			}
			if err != nil {
				return err
			}

			session := "none"
			if info.SessionActive {
				session = "active"
			}
			cmd.Printf("email:   %s\nsession: %s\n", info.Email, session)
			return nil
		},
	}
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Open the configured database and apply all pending migrations.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// opening storage applies migrations
			e, err := g.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			cmd.Printf("Migrations completed successfully (%s)\n", e.cfg.DatabaseType)
			return nil
		},
	}
}
