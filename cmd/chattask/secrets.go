package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/chattask/internal/credential"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage secrets stored in the OS keyring",
	Long: "Known secrets: " + strings.Join(credential.Keys, ", ") + `.

A CHATTASK_<KEY> environment variable (for example CHATTASK_WHATSAPP_ACCESS_TOKEN)
takes precedence over the keyring.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Prompt for a secret and store it in the keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !credential.Known(key) {
			return fmt.Errorf("unknown secret %q (known: %s)", key, strings.Join(credential.Keys, ", "))
		}

		var value string
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title(key).
					EchoMode(huh.EchoModePassword).
					Value(&value).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("value is required")
						}
						return nil
					}),
			),
		).Run()
		if err != nil {
			return err
		}

		if err := credential.NewStore().Set(key, strings.TrimSpace(value)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s.\n", key)
		return nil
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a secret from the keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var confirm bool
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete %s from the keyring?", key)).
					Value(&confirm),
			),
		).Run()
		if err != nil {
			return err
		}
		if !confirm {
			return nil
		}

		if err := credential.NewStore().Delete(key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", key)
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsDeleteCmd)
}
