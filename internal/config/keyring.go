package config

import (
	stderrors "errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "kcidb"

func keyringUser(account, user string) string {
	return fmt.Sprintf("%s/%s", account, user)
}

// StorePassword saves a Snowflake password in the OS keyring
func StorePassword(account, user, password string) error {
	if account == "" || user == "" {
		return fmt.Errorf("account and user are required")
	}
	if err := keyring.Set(keyringService, keyringUser(account, user), password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// LookupPassword returns the keyring password for an account user, or an
// empty string when none is stored
func LookupPassword(account, user string) (string, error) {
	password, err := keyring.Get(keyringService, keyringUser(account, user))
	if stderrors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return password, nil
}

// DeletePassword removes a stored password
func DeletePassword(account, user string) error {
	err := keyring.Delete(keyringService, keyringUser(account, user))
	if err != nil && !stderrors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
