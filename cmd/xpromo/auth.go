package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"xpromo/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored secrets",
	Long: `Manage the secrets xpromo needs at runtime.

Secrets are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)`,
}

// authSetKeyCmd represents the auth set-key command
var authSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the text-generation API key",
	Long: `Store the text-generation API key securely.

You will be prompted for the key; input is not echoed. Alternatively,
set the XPROMO_TEXTGEN_API_KEY environment variable.`,
	Example: `  xpromo auth set-key`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("API key: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}

		value := strings.TrimSpace(string(raw))
		if value == "" {
			return fmt.Errorf("key must not be empty")
		}

		manager, err := auth.NewManager()
		if err != nil {
			return err
		}
		if err := manager.Store(&auth.Secret{Name: auth.SecretTextGenAPIKey, Value: value}); err != nil {
			return err
		}

		fmt.Println("Key stored.")
		return nil
	},
}

// authShowCmd represents the auth show command
var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored secrets (masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return err
		}

		secrets, err := manager.List()
		if err != nil {
			return err
		}
		if len(secrets) == 0 {
			fmt.Println("No secrets stored")
			return nil
		}
		for _, s := range secrets {
			fmt.Printf("%s: %s\n", s.Name, auth.MaskValue(s.Value))
		}
		return nil
	},
}

// authDeleteKeyCmd represents the auth delete-key command
var authDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key",
	Short: "Remove the stored text-generation API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return err
		}
		if err := manager.Delete(auth.SecretTextGenAPIKey); err != nil {
			return err
		}
		fmt.Println("Key removed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetKeyCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authDeleteKeyCmd)
}
