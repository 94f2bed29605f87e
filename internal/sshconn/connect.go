package sshconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds a connection attempt (dial plus handshake) when the
// caller does not supply its own budget.
const DefaultTimeout = 20 * time.Second

// Connection failure kinds. Connect always returns an error wrapping exactly
// one of these.
var (
	ErrAuthFailed  = errors.New("ssh authentication failed")
	ErrUnreachable = errors.New("ssh host unreachable")
	ErrTimeout     = errors.New("ssh connection timed out")
	ErrProtocol    = errors.New("ssh protocol error")
)

// Connect dials and authenticates against cfg within timeout. On success the
// returned client is the caller's to close; on failure no connection is left
// open. A zero timeout means DefaultTimeout.
func Connect(ctx context.Context, cfg ConnConfig, timeout time.Duration) (*ssh.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	methods, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialer := net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	// The ClientConfig timeout only covers the banner exchange; a deadline
	// on the raw conn bounds the full handshake.
	if err := netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("%w: set deadline on %s: %v", ErrProtocol, addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientCfg)
	if err != nil {
		netConn.Close()
		return nil, classifyHandshakeError(addr, err)
	}

	if err := netConn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("%w: clear deadline on %s: %v", ErrProtocol, addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// authMethods builds the auth method list from the credential forms present.
// Password configs also get a keyboard-interactive method because some
// servers challenge with prompts instead of advertising plain password auth:
// any prompt mentioning "password" is answered with the credential, all
// others with an empty string.
func authMethods(cfg ConnConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v", ErrProtocol, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		password := cfg.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i, q := range questions {
					if strings.Contains(strings.ToLower(q), "password") {
						answers[i] = password
					}
				}
				return answers, nil
			}),
		)
	}

	return methods, nil
}

func classifyDialError(addr string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: dial %s: %v", ErrTimeout, addr, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: dial %s: %v", ErrTimeout, addr, err)
	}
	return fmt.Errorf("%w: dial %s: %v", ErrUnreachable, addr, err)
}

func classifyHandshakeError(addr string, err error) error {
	// x/crypto/ssh reports rejected credentials with this prefix; there is
	// no structured error type for it.
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %s: %v", ErrAuthFailed, addr, err)
	}
	// The handshake error does not always wrap the underlying net.Error,
	// so fall back to matching the message.
	var ne net.Error
	if (errors.As(err, &ne) && ne.Timeout()) || strings.Contains(err.Error(), "timeout") {
		return fmt.Errorf("%w: handshake with %s: %v", ErrTimeout, addr, err)
	}
	return fmt.Errorf("%w: handshake with %s: %v", ErrProtocol, addr, err)
}
