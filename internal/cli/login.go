// internal/cli/login.go
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/menucollect/clipper/internal/auth"
	"github.com/menucollect/clipper/internal/ui"
)

var (
	loginEmail string
	loginToken string
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the collection backend",
	Long: `Exchanges your email and password for an API token and stores it in the
OS keyring (or a file under ~/.clipper in environments without one).

If you already have a token, pass it directly with --token.`,
	Example: `  # Interactive login
  clipper login --email chef@luigis.example

  # Store an existing token
  clipper login --token cl_live_abc123`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.DeleteToken(); err != nil {
			return err
		}
		fmt.Println(ui.Success("✓ Token removed"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Store this token instead of logging in")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginToken != "" {
		if err := auth.SaveToken(loginToken); err != nil {
			return err
		}
		fmt.Println(ui.Success("✓ Token stored"))
		return nil
	}

	a := GetApp()
	client, err := a.RequireAPI()
	if err != nil {
		return err
	}

	email := loginEmail
	if email == "" {
		fmt.Print("Email: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	token, err := client.Login(cmd.Context(), email, string(password))
	if err != nil {
		return err
	}
	if err := auth.SaveToken(token); err != nil {
		return fmt.Errorf("token received but not stored: %w", err)
	}

	fmt.Println(ui.Success("✓ Logged in, token stored"))
	return nil
}
