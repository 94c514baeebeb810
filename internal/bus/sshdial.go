package bus

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHDialer tunnels bus attachments through an SSH jump host, for reaching a
// canbusd instance on a remote bench without exposing the bus port.
type SSHDialer struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration

	client *ssh.Client
}

// Dial opens a tunneled stream to addr through the jump host. The SSH
// connection is established on first use and reused afterwards.
func (d *SSHDialer) Dial(network, addr string) (net.Conn, error) {
	if d.client == nil {
		client, err := d.connect()
		if err != nil {
			return nil, err
		}
		d.client = client
	}
	return d.client.Dial(network, addr)
}

// Close tears down the jump-host connection.
func (d *SSHDialer) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

func (d *SSHDialer) connect() (*ssh.Client, error) {
	address, err := d.address()
	if err != nil {
		return nil, err
	}

	config, err := d.clientConfig()
	if err != nil {
		return nil, err
	}

	if d.Timeout <= 0 {
		return ssh.Dial("tcp", address, config)
	}

	conn, err := net.DialTimeout("tcp", address, d.Timeout)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (d *SSHDialer) address() (string, error) {
	host := strings.TrimSpace(d.Host)
	if host == "" {
		return "", fmt.Errorf("bus: ssh host is required")
	}

	if d.Port != "" {
		return net.JoinHostPort(host, d.Port), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (d *SSHDialer) clientConfig() (*ssh.ClientConfig, error) {
	if d.User == "" {
		return nil, fmt.Errorf("bus: ssh user is required")
	}

	signer, err := d.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if d.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := d.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.Timeout,
	}, nil
}

func (d *SSHDialer) signer() (ssh.Signer, error) {
	if d.KeyPath == "" {
		return nil, fmt.Errorf("bus: ssh key path is required")
	}

	privateKey, err := os.ReadFile(d.KeyPath)
	if err != nil {
		return nil, err
	}

	if len(d.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, d.Passphrase)
	}

	return ssh.ParsePrivateKey(privateKey)
}

func (d *SSHDialer) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(d.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("bus: known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}
