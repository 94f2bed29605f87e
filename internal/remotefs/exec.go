package remotefs

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// runCommand opens a fresh session, runs cmd, and returns stdout, stderr,
// and the exit code. A non-nil error means the transport itself failed.
func (c *Client) runCommand(cmd string) (stdout, stderr string, exitCode int, err error) {
	session, err := c.ssh.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	if runErr := session.Run(cmd); runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			return outBuf.String(), errBuf.String(), exitErr.ExitStatus(), nil
		}
		return outBuf.String(), errBuf.String(), -1, runErr
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

// readViaExec fetches a file with cat for servers without an sftp
// subsystem.
func (c *Client) readViaExec(path string) ([]byte, error) {
	stdout, stderr, exitCode, err := c.runCommand("cat " + shellQuote(path))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrRemoteRead, path, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%w: read %s: %s", ErrRemoteRead, path, strings.TrimSpace(stderr))
	}
	return []byte(stdout), nil
}

// writeViaExec replaces a file by piping data to cat's stdin.
func (c *Client) writeViaExec(path string, data []byte) error {
	session, err := c.ssh.NewSession()
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrRemoteWrite, path, err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrRemoteWrite, path, err)
	}

	var errBuf bytes.Buffer
	session.Stderr = &errBuf

	if err := session.Start("cat > " + shellQuote(path)); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrRemoteWrite, path, err)
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrRemoteWrite, path, err)
	}
	stdin.Close()

	if err := session.Wait(); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return fmt.Errorf("%w: write %s: exit %d: %s", ErrRemoteWrite, path, exitErr.ExitStatus(), strings.TrimSpace(errBuf.String()))
		}
		return fmt.Errorf("%w: write %s: %v", ErrRemoteWrite, path, err)
	}
	return nil
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
