// Package sshtest runs an in-process SSH server for integration tests.
//
// The server supports password, keyboard-interactive, and public key auth,
// PTY-backed shell sessions that echo stdin with an "echo:" prefix, a small
// exec emulation (cat / cat > / mkdir -p) and an SFTP subsystem, both rooted
// at a test-owned directory.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Config selects which auth forms the test server accepts. Zero values
// disable the corresponding form.
type Config struct {
	// Password is accepted for any username via the "password" method.
	Password string
	// KeyboardInteractiveOnly disables the plain "password" method and
	// instead challenges with a "Password: " prompt that must be answered
	// with Password.
	KeyboardInteractiveOnly bool
	// AuthorizedKey is accepted via the "publickey" method.
	AuthorizedKey ssh.PublicKey
	// Root backs the exec emulation and the SFTP subsystem. Defaults to a
	// fresh temp dir.
	Root string
}

// Server is a running test SSH server.
type Server struct {
	Addr string
	Root string

	listener net.Listener
	done     chan struct{}

	mu    sync.Mutex
	conns []net.Conn
}

// GenerateSigner creates an ed25519 key pair and returns the private key as
// a signer plus its PEM encoding.
func GenerateSigner(t *testing.T) (ssh.Signer, []byte) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(block)
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("parse private key: %v", err)
	}
	return signer, pemBytes
}

// Start launches the server on a loopback port. Cleanup is registered on t.
func Start(t *testing.T, cfg Config) *Server {
	t.Helper()

	hostSigner, _ := GenerateSigner(t)

	serverCfg := &ssh.ServerConfig{}
	if cfg.Password != "" && !cfg.KeyboardInteractiveOnly {
		password := cfg.Password
		serverCfg.PasswordCallback = func(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("wrong password")
		}
	}
	if cfg.Password != "" {
		password := cfg.Password
		serverCfg.KeyboardInteractiveCallback = func(conn ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(conn.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 1 && answers[0] == password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("wrong keyboard-interactive answer")
		}
	}
	if cfg.AuthorizedKey != nil {
		authorized := ssh.FingerprintSHA256(cfg.AuthorizedKey)
		serverCfg.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if ssh.FingerprintSHA256(key) == authorized {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}
	serverCfg.AddHostKey(hostSigner)

	root := cfg.Root
	if root == "" {
		root = t.TempDir()
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		Addr:     listener.Addr().String(),
		Root:     root,
		listener: listener,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, netConn)
			s.mu.Unlock()
			go s.handleConn(netConn, serverCfg)
		}
	}()

	t.Cleanup(s.Close)
	return s
}

// Close stops the listener and force-closes every accepted connection.
func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	<-s.done
}

// CloseClientConns drops all live TCP connections without stopping the
// listener, simulating a network failure under an established client.
func (s *Server) CloseClientConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *Server) handleConn(netConn net.Conn, cfg *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, cfg)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	var hasPTY bool

	for req := range requests {
		switch req.Type {
		case "pty-req":
			hasPTY = true
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "window-change":
			if len(req.Payload) >= 8 {
				cols := binary.BigEndian.Uint32(req.Payload[0:4])
				rows := binary.BigEndian.Uint32(req.Payload[4:8])
				ch.Write([]byte(fmt.Sprintf("resize:%dx%d\n", cols, rows)))
			}
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "shell":
			if req.WantReply {
				req.Reply(true, nil)
			}
			if hasPTY {
				ch.Write([]byte("PTY:true\n"))
			} else {
				ch.Write([]byte("PTY:false\n"))
			}
			// Echo stdin back with a prefix so tests can observe what the
			// client wrote. Keep handling window-change requests.
			go func() {
				buf := make([]byte, 4096)
				for {
					n, err := ch.Read(buf)
					if n > 0 {
						ch.Write([]byte("echo:"))
						ch.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}()

		case "exec":
			if req.WantReply {
				req.Reply(true, nil)
			}
			var payload struct{ Command string }
			status := uint32(1)
			if err := ssh.Unmarshal(req.Payload, &payload); err == nil {
				status = s.runExec(ch, payload.Command)
			}
			sendExitStatus(ch, status)
			return

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				if req.WantReply {
					req.Reply(false, nil)
				}
				continue
			}
			if req.WantReply {
				req.Reply(true, nil)
			}
			srv, err := sftp.NewServer(ch, sftp.WithServerWorkingDirectory(s.Root))
			if err != nil {
				return
			}
			srv.Serve()
			srv.Close()
			return

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// runExec emulates the few command shapes the exec file fallback issues.
func (s *Server) runExec(ch ssh.Channel, command string) uint32 {
	switch {
	case strings.HasPrefix(command, "cat > "):
		path, ok := s.resolve(strings.TrimPrefix(command, "cat > "))
		if !ok {
			fmt.Fprintf(ch.Stderr(), "cat: invalid path\n")
			return 1
		}
		data, err := io.ReadAll(ch)
		if err != nil {
			fmt.Fprintf(ch.Stderr(), "cat: %v\n", err)
			return 1
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(ch.Stderr(), "cat: %v\n", err)
			return 1
		}
		return 0

	case strings.HasPrefix(command, "cat "):
		path, ok := s.resolve(strings.TrimPrefix(command, "cat "))
		if !ok {
			fmt.Fprintf(ch.Stderr(), "cat: invalid path\n")
			return 1
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(ch.Stderr(), "cat: %s: No such file or directory\n", path)
			return 1
		}
		ch.Write(data)
		return 0

	case strings.HasPrefix(command, "mkdir -p "):
		path, ok := s.resolve(strings.TrimPrefix(command, "mkdir -p "))
		if !ok {
			fmt.Fprintf(ch.Stderr(), "mkdir: invalid path\n")
			return 1
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			fmt.Fprintf(ch.Stderr(), "mkdir: %v\n", err)
			return 1
		}
		return 0

	default:
		fmt.Fprintf(ch.Stderr(), "sh: command not supported: %s\n", command)
		return 127
	}
}

// resolve unquotes a single-quoted shell argument and joins it under Root.
func (s *Server) resolve(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "'") && strings.HasSuffix(arg, "'") && len(arg) >= 2 {
		arg = strings.ReplaceAll(arg[1:len(arg)-1], `'\''`, "'")
	}
	if arg == "" || strings.Contains(arg, "..") {
		return "", false
	}
	return filepath.Join(s.Root, arg), true
}

func sendExitStatus(ch ssh.Channel, status uint32) {
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
}
