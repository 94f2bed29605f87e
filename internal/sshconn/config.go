// Package sshconn validates connection parameters and establishes
// authenticated SSH connections to remote hosts.
//
// Failures are classified into sentinel errors (ErrAuthFailed,
// ErrUnreachable, ErrTimeout, ErrProtocol) so callers can map them without
// string matching. Validation runs before any network resource is touched.
package sshconn

import "strings"

// ConnConfig holds the parameters for one connection attempt. Exactly one of
// Password or PrivateKey must be supplied.
type ConnConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM-encoded
}

// ValidationError reports why a config was rejected. It never wraps an I/O
// error; validation is pure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid connection config: " + e.Reason
}

// Validate checks the config without any side effects. It must pass before
// Connect is called.
func (c ConnConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &ValidationError{Reason: "host is required"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ValidationError{Reason: "port must be between 1 and 65535"}
	}
	if strings.TrimSpace(c.Username) == "" {
		return &ValidationError{Reason: "username is required"}
	}
	if c.Password == "" && len(c.PrivateKey) == 0 {
		return &ValidationError{Reason: "either a password or a private key is required"}
	}
	return nil
}
