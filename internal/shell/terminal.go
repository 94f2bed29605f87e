// Package shell opens interactive PTY-backed terminal channels on live SSH
// connections and places the remote side into a named tmux session.
package shell

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// ErrChannel reports that an interactive channel could not be opened or set
// up. The bridge does not retry; callers decide whether to reconnect.
var ErrChannel = errors.New("shell channel failed")

// Defaults used when the client does not report its terminal size.
const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24
)

// TerminalSession is an interactive shell channel with a PTY. Read returns
// remote output, Write feeds remote stdin; both carry raw bytes including
// escape sequences.
type TerminalSession struct {
	stdin   io.WriteCloser
	stdout  io.Reader
	session *ssh.Session
}

func (ts *TerminalSession) Read(p []byte) (int, error)  { return ts.stdout.Read(p) }
func (ts *TerminalSession) Write(p []byte) (int, error) { return ts.stdin.Write(p) }

// Resize changes the remote PTY dimensions.
func (ts *TerminalSession) Resize(cols, rows uint16) error {
	return ts.session.WindowChange(int(rows), int(cols))
}

// Close terminates the channel. Closing an already-closed session returns
// the transport's error, which callers may ignore during teardown.
func (ts *TerminalSession) Close() error {
	return ts.session.Close()
}

// Open starts an interactive shell with a PTY of the given size on client.
// Zero dimensions fall back to the defaults. All failures wrap ErrChannel.
func Open(client *ssh.Client, cols, rows uint16) (*TerminalSession, error) {
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: open session: %v", ErrChannel, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := session.RequestPty("xterm-256color", int(rows), int(cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: request pty: %v", ErrChannel, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrChannel, err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrChannel, err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: start shell: %v", ErrChannel, err)
	}

	return &TerminalSession{
		stdin:   stdin,
		stdout:  stdout,
		session: session,
	}, nil
}
