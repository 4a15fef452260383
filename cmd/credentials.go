package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kcidb/internal/common"
	"kcidb/internal/config"
	"kcidb/internal/ui"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

var (
	credentialsAccount string
	credentialsUser    string
	encryptWrite       bool
	encryptBackup      bool

	// Replaced in tests
	promptPassword = ui.Password
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the Snowflake password",
	Long: `Store the Snowflake password outside the credentials file.

A password left empty in the credentials file is looked up in the OS
keyring. A password of the form ENC[...] is decrypted with the passphrase
in $KCIDB_ENCRYPTION_KEY.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the Snowflake password in the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		account, user := keyringAccount()
		if account == "" || user == "" {
			return errors.ValidationError("account", account, "--account and --user are required without a credentials file")
		}

		password, err := readPassword(cmd, fmt.Sprintf("Snowflake password for %s@%s:", user, account))
		if err != nil {
			return err
		}
		if err := config.StorePassword(account, user, password); err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Password for %s@%s stored in the keyring", user, account))
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the Snowflake password from the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		account, user := keyringAccount()
		if account == "" || user == "" {
			return errors.ValidationError("account", account, "--account and --user are required without a credentials file")
		}
		if err := config.DeletePassword(account, user); err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Password for %s@%s removed from the keyring", user, account))
		return nil
	},
}

var credentialsEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt the Snowflake password for the credentials file",
	Long: `Encrypt a password with AES-256-GCM under a key derived from
$KCIDB_ENCRYPTION_KEY and print the ENC[...] value.

With --write the value replaces snowflake.password in the credentials file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd, "Snowflake password:")
		if err != nil {
			return err
		}
		encrypted, err := config.EncryptPassword(password)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to encrypt password").
				WithSuggestions(fmt.Sprintf("Set %s to the encryption passphrase", config.EncryptionKeyEnv))
		}

		if !encryptWrite {
			fmt.Fprintln(cmd.OutOrStdout(), encrypted)
			return nil
		}
		return writeEncryptedPassword(cmd, encrypted)
	},
}

func writeEncryptedPassword(cmd *cobra.Command, encrypted string) error {
	configFile := config.GetConfigFile()

	cfg := &models.Config{Warehouse: models.Warehouse{Driver: config.DriverSnowflake}}
	data, err := os.ReadFile(configFile) // #nosec G304 - path comes from the operator
	switch {
	case err == nil:
		if cfg, err = config.ReadFile(configFile); err != nil {
			return err
		}
		if encryptBackup {
			backupFile := configFile + ".backup"
			if err := common.WriteFile(backupFile, data, common.SecureFileMode); err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}
			ui.ShowInfo(cmd.OutOrStdout(), fmt.Sprintf("Created backup: %s", backupFile))
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.Snowflake.Password = encrypted
	if err := config.Save(cfg, configFile); err != nil {
		return err
	}
	ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Encrypted password written to %s", configFile))
	return nil
}

// keyringAccount returns the flag values, falling back to the credentials file
func keyringAccount() (string, string) {
	account, user := credentialsAccount, credentialsUser
	if appConfig != nil {
		if account == "" {
			account = appConfig.Snowflake.Account
		}
		if user == "" {
			user = appConfig.Snowflake.User
		}
	}
	return account, user
}

// readPassword prompts on a terminal and reads one line otherwise
func readPassword(cmd *cobra.Command, message string) (string, error) {
	if interactive() {
		return promptPassword(message, "The password is not echoed")
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.ValidationError("password", "", "no password on standard input")
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.ValidationError("password", "", "password is empty")
	}
	return password, nil
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	credentialsCmd.AddCommand(credentialsEncryptCmd)

	for _, c := range []*cobra.Command{credentialsSetCmd, credentialsDeleteCmd} {
		c.Flags().StringVar(&credentialsAccount, "account", "", "Snowflake account (default from the credentials file)")
		c.Flags().StringVar(&credentialsUser, "user", "", "Snowflake user (default from the credentials file)")
	}
	credentialsEncryptCmd.Flags().BoolVar(&encryptWrite, "write", false, "Write the value into the credentials file")
	credentialsEncryptCmd.Flags().BoolVar(&encryptBackup, "backup", true, "Back up the credentials file before writing")
}
