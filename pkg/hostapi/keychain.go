package hostapi

import (
	"context"
	"os/user"

	"github.com/zalando/go-keyring"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// Keychain reads generic passwords from a secret store.
type Keychain interface {
	Get(service, account string) (string, error)
}

// SystemKeychain reads from the OS keychain via go-keyring.
type SystemKeychain struct{}

// Get returns the secret stored for service and account.
func (SystemKeychain) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (s *Surface) handleKeychainRead(_ context.Context, _ Caller, args Args) (any, error) {
	service, err := args.String(CapabilityKeychainRead, "service")
	if err != nil {
		return nil, err
	}
	account, err := args.OptionalString(CapabilityKeychainRead, "account", "")
	if err != nil {
		return nil, err
	}
	if account == "" {
		account = defaultAccount()
	}

	secret, err := s.keychain.Get(service, account)
	if err != nil {
		if ouerrors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityKeychainRead),
			"keychain read failed for service "+service, err, false)
	}
	return secret, nil
}

func defaultAccount() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
