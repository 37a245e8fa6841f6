package main

import (
	"fmt"
	"os"

	"github.com/jonathan/ad-dashboard/internal/types"
	"github.com/spf13/cobra"
)

// passwordEnv keeps the password out of shell history.
const passwordEnv = "AD_PASSWORD"

var (
	authEmail    string
	authPassword string
	authName     string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE:  runRegister,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	for _, cmd := range []*cobra.Command{registerCmd, loginCmd} {
		cmd.Flags().StringVarP(&authEmail, "email", "e", "", "Account email")
		cmd.Flags().StringVarP(&authPassword, "password", "p", "", "Account password (defaults to AD_PASSWORD env var)")
		_ = cmd.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVarP(&authName, "name", "n", "", "Full name")
	_ = registerCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)
}

func password() string {
	if authPassword != "" {
		return authPassword
	}
	return os.Getenv(passwordEnv)
}

func runRegister(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.api.Register(cmd.Context(), types.RegisterRequest{
		Email:    authEmail,
		FullName: authName,
		Password: password(),
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	a.out.PrintUser(user)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Account created. Run 'ad_agent login' to sign in.")
	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.api.Login(cmd.Context(), authEmail, password())
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	a.log.WithField("email", user.Email).Debug("logged in")

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Email)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.api.Logout(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.api.Me(cmd.Context())
	if err != nil {
		return err
	}
	a.out.PrintUser(user)
	return nil
}
