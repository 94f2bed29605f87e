// Package remotefs reads and writes files on a remote host over an
// established SSH connection.
//
// The SFTP subsystem is the primary transport. Servers that do not offer it
// are handled by an exec fallback that shells out to cat. Both paths report
// failures as ErrRemoteRead / ErrRemoteWrite so callers can tell transport
// problems apart from their own logic errors.
package remotefs

import (
	"errors"
	"fmt"
	"io"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Typed I/O failure kinds.
var (
	ErrRemoteRead  = errors.New("remote read failed")
	ErrRemoteWrite = errors.New("remote write failed")
)

// FileIO is the minimal contract the plan store depends on.
type FileIO interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// Client performs file operations over a live SSH connection. It does not
// own the connection; closing the handle is the session registry's job.
type Client struct {
	ssh *ssh.Client
}

func New(client *ssh.Client) *Client {
	return &Client{ssh: client}
}

// ReadFile fetches the full contents of the remote file at path. Paths are
// interpreted by the remote server; relative paths resolve against the login
// user's home directory.
func (c *Client) ReadFile(path string) ([]byte, error) {
	sftpc, err := sftp.NewClient(c.ssh)
	if err != nil {
		// No sftp subsystem on this server; try plain exec.
		return c.readViaExec(path)
	}
	defer sftpc.Close()

	f, err := sftpc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrRemoteRead, path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrRemoteRead, path, err)
	}
	return data, nil
}

// WriteFile replaces the remote file at path with data. The write is a
// single full-file replacement; there is no partial update.
func (c *Client) WriteFile(path string, data []byte) error {
	sftpc, err := sftp.NewClient(c.ssh)
	if err != nil {
		return c.writeViaExec(path, data)
	}
	defer sftpc.Close()

	f, err := sftpc.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrRemoteWrite, path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %v", ErrRemoteWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrRemoteWrite, path, err)
	}
	return nil
}
