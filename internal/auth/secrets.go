package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	defaultSecretService = "cashflow"
	defaultPATAccount    = "up_pat"
	defaultDBKeyAccount  = "db_key"
)

var (
	keyringGet = keyring.Get
	keyringSet = keyring.Set
)

// ErrNoSecret is returned when the credential store has no entry.
var ErrNoSecret = errors.New("secret not found")

// LoadPAT loads the Up Personal Access Token used by the Up importer.
//
// Order of precedence:
// 1) UP_PAT environment variable.
// 2) system keyring item referenced by service/account.
func LoadPAT() (string, error) {
	if pat := strings.TrimSpace(os.Getenv("UP_PAT")); pat != "" {
		return pat, nil
	}

	pat, err := loadSecret(patAccount())
	if err != nil {
		return "", err
	}
	if pat == "" {
		return "", errors.New("up PAT is empty")
	}
	return pat, nil
}

// SavePAT stores the Up PAT in the system credential store.
func SavePAT(pat string) error {
	trimmed := strings.TrimSpace(pat)
	if trimmed == "" {
		return errors.New("up PAT cannot be empty")
	}
	return saveSecret(patAccount(), trimmed)
}

// LoadDBKey loads the sqlcipher key for the secure database.
func LoadDBKey() (string, error) {
	return loadSecret(envOrDefault("CASHFLOW_DB_KEY_ACCOUNT", defaultDBKeyAccount))
}

func SaveDBKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("db key cannot be empty")
	}
	return saveSecret(envOrDefault("CASHFLOW_DB_KEY_ACCOUNT", defaultDBKeyAccount), key)
}

func patAccount() string {
	return envOrDefault("CASHFLOW_KEYCHAIN_ACCOUNT", defaultPATAccount)
}

func loadSecret(account string) (string, error) {
	service := envOrDefault("CASHFLOW_KEYCHAIN_SERVICE", defaultSecretService)

	secret, err := keyringGet(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring item service=%q account=%q: %w", service, account, ErrNoSecret)
	}
	if err != nil {
		return "", fmt.Errorf(
			"failed to read keyring item service=%q account=%q: %w",
			service,
			account,
			err,
		)
	}
	return strings.TrimSpace(secret), nil
}

func saveSecret(account, secret string) error {
	service := envOrDefault("CASHFLOW_KEYCHAIN_SERVICE", defaultSecretService)
	if err := keyringSet(service, account, secret); err != nil {
		return fmt.Errorf(
			"failed to store keyring item service=%q account=%q: %w",
			service,
			account,
			err,
		)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
