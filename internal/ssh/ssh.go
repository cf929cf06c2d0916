// Package ssh provides the SSH transport used to drive Docker on the
// provisioned VMs.
package ssh

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHCommunicator implements Communicator over the SSH protocol.
type SSHCommunicator struct {
	host       string
	user       string
	privateKey []byte
}

// NewCommunicator creates a communicator for host using key-based
// authentication.
func NewCommunicator(host, user string, privateKey []byte) *SSHCommunicator {
	return &SSHCommunicator{host: host, user: user, privateKey: privateKey}
}

// NewDialer returns a Dialer that loads the private key once and hands
// out communicators bound to it.
func NewDialer(user, keyPath string) (Dialer, error) {
	// #nosec G304
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key %s: %w", keyPath, err)
	}
	return func(host string) Communicator {
		return NewCommunicator(host, user, key)
	}, nil
}

func (c *SSHCommunicator) connect(ctx context.Context) (*ssh.Client, error) {
	signer, err := ssh.ParsePrivateKey(c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            c.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // testnet VMs are freshly created, no known_hosts yet
		Timeout:         10 * time.Second,
	}

	var client *ssh.Client
	var dialErr error
	for i := 0; i < 10; i++ {
		client, dialErr = ssh.Dial("tcp", c.host+":22", cfg)
		if dialErr == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to dial ssh %s: %w", c.host, dialErr)
}

// Execute runs a command and returns its combined output.
func (c *SSHCommunicator) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("failed to execute command: %w, output: %s", err, output)
	}
	return string(output), nil
}

// Upload streams a local file to the remote path through a shell
// redirect, avoiding an SFTP subsystem dependency on minimal images.
func (c *SSHCommunicator) Upload(ctx context.Context, localPath, remotePath string) error {
	// #nosec G304
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdin = file
	command := fmt.Sprintf("cat > %s", remotePath)
	if output, err := session.CombinedOutput(command); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w, output: %s", localPath, remotePath, err, output)
	}
	return nil
}
