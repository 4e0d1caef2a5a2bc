// Package credential stores the dashboard session in the system keyring.
// The agent itself only reads the session at startup; SaveSession and
// ClearSession are the write half of the contract, called by the sign-in
// tooling that provisions the agent.
package credential

import (
	"encoding/json"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/pharmtask/agent/internal/model"
)

const serviceName = "pharmtask"

// sessionKey is the keyring entry holding the serialized session.
const sessionKey = "session"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/pharmtask/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("pharmtask-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// SaveSession stores the authenticated session in the system keyring.
func SaveSession(sess model.Session) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	err = ring.Set(keyring.Item{
		Key:  sessionKey,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	return nil
}

// LoadSession retrieves the stored session from the system keyring.
func LoadSession() (model.Session, error) {
	ring, err := openKeyring()
	if err != nil {
		return model.Session{}, err
	}

	item, err := ring.Get(sessionKey)
	if err != nil {
		return model.Session{}, fmt.Errorf("loading session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(item.Data, &sess); err != nil {
		return model.Session{}, fmt.Errorf("parsing stored session: %w", err)
	}

	return sess, nil
}

// ClearSession removes the stored session from the system keyring.
func ClearSession() error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(sessionKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	return nil
}
