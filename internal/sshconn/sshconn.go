// Package sshconn resolves `[user@]host[:port]` targets and opens an SFTP
// session over SSH, authenticating with the agent, a key file or a password.
package sshconn

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultPort    = 22
	defaultTimeout = 15 * time.Second
)

var (
	ErrInvalidTarget = errors.New("invalid target")
	ErrNoAuthMethods = errors.New("no ssh authentication method available")
)

// default key files tried when no identity file is configured
var defaultIdentities = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// Target is a remote endpoint.
type Target struct {
	User string
	Host string
	Port int
}

// ParseTarget parses `[user@]host[:port]`. IPv6 hosts need brackets when a
// port is given. The user defaults to the current user.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty host", ErrInvalidTarget)
	}

	t := Target{Port: defaultPort}
	if at := strings.LastIndex(s, "@"); at >= 0 {
		t.User, s = s[:at], s[at+1:]
		if t.User == "" {
			return Target{}, fmt.Errorf("%w: empty user", ErrInvalidTarget)
		}
	}

	switch {
	case strings.HasPrefix(s, "["):
		host, port, err := net.SplitHostPort(s)
		if err != nil {
			if !strings.HasSuffix(s, "]") {
				return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
			}
			host, port = strings.Trim(s, "[]"), ""
		}
		t.Host = host
		if port != "" {
			if t.Port, err = parsePort(port); err != nil {
				return Target{}, err
			}
		}
	case strings.Count(s, ":") == 1:
		host, port, _ := strings.Cut(s, ":")
		p, err := parsePort(port)
		if err != nil {
			return Target{}, err
		}
		t.Host, t.Port = host, p
	default:
		t.Host = s
	}

	if t.Host == "" {
		return Target{}, fmt.Errorf("%w: empty host", ErrInvalidTarget)
	}
	if t.User == "" {
		t.User = currentUser()
	}
	return t, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("%w: bad port %q", ErrInvalidTarget, s)
	}
	return p, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return t.User + "@" + t.Addr()
}

// Config holds how to authenticate and verify the server.
type Config struct {
	// IdentityFile is a private key. Empty tries the usual ~/.ssh keys.
	IdentityFile string
	// KnownHosts is the known_hosts file used to verify the server key.
	KnownHosts string
	// Prompt asks the operator for a password or key passphrase. Nil
	// disables interactive authentication.
	Prompt  func(prompt string) (string, error)
	Timeout time.Duration
}

// Session is an open SSH connection with its SFTP subsystem.
type Session struct {
	Target Target
	SFTP   *sftp.Client

	ssh   *ssh.Client
	agent net.Conn
}

// Dial connects, authenticates and starts SFTP.
func Dial(ctx context.Context, target Target, cfg Config) (*Session, error) {
	hostKeys, err := HostKeyCallback(cfg.KnownHosts)
	if err != nil {
		return nil, err
	}

	auth, agentConn := authMethods(target, cfg)
	if len(auth) == 0 {
		return nil, ErrNoAuthMethods
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clientConfig := &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	slog.Info("ssh dial", "target", target.String())
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		closeQuietly(agentConn)
		return nil, fmt.Errorf("dial %s: %w", target.Addr(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target.Addr(), clientConfig)
	if err != nil {
		conn.Close()
		closeQuietly(agentConn)
		return nil, fmt.Errorf("ssh handshake with %s: %w", target.Addr(), err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		closeQuietly(agentConn)
		return nil, fmt.Errorf("start sftp on %s: %w", target.Addr(), err)
	}

	return &Session{Target: target, SFTP: sftpClient, ssh: client, agent: agentConn}, nil
}

// RemoteRoot resolves a remote path the way scp does: relative paths and
// `~/` are relative to the login directory.
func (s *Session) RemoteRoot(p string) (string, error) {
	p = strings.TrimPrefix(p, "~/")
	if p == "~" || p == "" {
		p = "."
	}
	resolved, err := s.SFTP.RealPath(p)
	if err != nil {
		return "", fmt.Errorf("resolve remote path %s: %w", p, err)
	}
	return resolved, nil
}

func (s *Session) Close() error {
	err := errors.Join(s.SFTP.Close(), s.ssh.Close())
	closeQuietly(s.agent)
	return err
}

// HostKeyCallback verifies server keys against a known_hosts file.
func HostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("known_hosts file %s does not exist; connect once with ssh to record the host key", knownHostsPath)
		}
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return fmt.Errorf("host %s is not in %s: %w", hostname, knownHostsPath, err)
		}
		return err
	}, nil
}

// authMethods orders agent keys first, then key files, then a password.
func authMethods(target Target, cfg Config) ([]ssh.AuthMethod, net.Conn) {
	var methods []ssh.AuthMethod

	var agentConn net.Conn
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			slog.Debug("ssh agent unavailable", "error", err)
		} else {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if signers := loadSigners(cfg); len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if cfg.Prompt != nil {
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return cfg.Prompt(fmt.Sprintf("%s's password: ", target.String()))
		}))
	}
	return methods, agentConn
}

func loadSigners(cfg Config) []ssh.Signer {
	paths := []string{cfg.IdentityFile}
	if cfg.IdentityFile == "" {
		paths = nil
		if home, err := os.UserHomeDir(); err == nil {
			for _, name := range defaultIdentities {
				paths = append(paths, filepath.Join(home, ".ssh", name))
			}
		}
	}

	var signers []ssh.Signer
	for _, p := range paths {
		signer, err := LoadSigner(p, cfg.Prompt)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) || cfg.IdentityFile != "" {
				slog.Warn("ssh key skipped", "path", p, "error", err)
			}
			continue
		}
		signers = append(signers, signer)
	}
	return signers
}

// LoadSigner reads a private key, asking for the passphrase when the key is
// encrypted and prompt is set.
func LoadSigner(path string, prompt func(string) (string, error)) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && prompt != nil {
		passphrase, perr := prompt(fmt.Sprintf("Enter passphrase for key '%s': ", path))
		if perr != nil {
			return nil, perr
		}
		return ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	return signer, err
}

func closeQuietly(c net.Conn) {
	if c != nil {
		c.Close()
	}
}
