package shell

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// MuxOptions names the durable tmux session the bridge attaches to and, when
// the session does not exist yet, where and what to launch inside it.
type MuxOptions struct {
	// SessionName is the well-known tmux session name.
	SessionName string
	// WorkspaceDir is the directory (relative to the login user's home) a
	// freshly created session changes into.
	WorkspaceDir string
	// Command is the interactive assistant process launched in a new
	// session.
	Command string
}

// commandLine renders the attach-or-create conditional evaluated by the
// remote shell. The branch taken is decided remotely; locally we only learn
// that the channel opened.
func (o MuxOptions) commandLine() string {
	return fmt.Sprintf(
		"if tmux has-session -t %s 2>/dev/null; then tmux attach-session -t %s; else cd %s && tmux new-session -s %s %s; fi\n",
		o.SessionName, o.SessionName, o.WorkspaceDir, o.SessionName, o.Command,
	)
}

// StartMux opens an interactive terminal on client and immediately issues
// the attach-or-create command line, so disconnecting and reconnecting the
// relay resumes the same remote process tree. If the channel fails to open,
// a typed ErrChannel is returned and nothing is retried.
func StartMux(client *ssh.Client, opts MuxOptions, cols, rows uint16) (*TerminalSession, error) {
	ts, err := Open(client, cols, rows)
	if err != nil {
		return nil, err
	}

	if _, err := ts.Write([]byte(opts.commandLine())); err != nil {
		ts.Close()
		return nil, fmt.Errorf("%w: send mux command: %v", ErrChannel, err)
	}
	return ts, nil
}
