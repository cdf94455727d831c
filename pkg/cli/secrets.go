package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codeqa/pkg/config"
)

func (a *app) newSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted API key file",
		Long: fmt.Sprintf(`Manage API keys stored in an encrypted secrets file. Decrypted secrets take
precedence over the environment. Set %s to skip the password prompt.`, SecretsPasswordEnv),
	}

	setCmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Store a secret, e.g. GEMINI_API_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.secretsPassword(cmd)
			if err != nil {
				return err
			}

			secrets := map[string]string{}
			if config.SecretsFileExists(a.cfg.SecretsDir) {
				if secrets, err = config.DecryptSecretsFile(a.cfg.SecretsDir, password); err != nil {
					return fmt.Errorf("failed to decrypt secrets: %w", err)
				}
			}

			value, err := a.prompt(cmd, fmt.Sprintf("Value for %s: ", args[0]), true)
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("secret value must not be empty")
			}

			config.SetDecryptedSecrets(secrets)
			config.SetSecret(args[0], value)
			if err := config.SaveSecretsToFile(a.cfg.SecretsDir, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", args[0], config.SecretsPath(a.cfg.SecretsDir))
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !config.SecretsFileExists(a.cfg.SecretsDir) {
				return fmt.Errorf("no secrets file at %s", config.SecretsPath(a.cfg.SecretsDir))
			}
			password, err := a.secretsPassword(cmd)
			if err != nil {
				return err
			}
			secrets, err := config.DecryptSecretsFile(a.cfg.SecretsDir, password)
			if err != nil {
				return fmt.Errorf("failed to decrypt secrets: %w", err)
			}
			config.SetDecryptedSecrets(secrets)
			for _, name := range config.SecretNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.AddCommand(setCmd, listCmd)
	return cmd
}

func (a *app) secretsPassword(cmd *cobra.Command) (string, error) {
	if password := os.Getenv(SecretsPasswordEnv); password != "" {
		return password, nil
	}
	password, err := a.prompt(cmd, "Secrets password: ", true)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}
