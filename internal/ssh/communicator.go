package ssh

import "context"

// Communicator executes commands and uploads files on a remote VM.
type Communicator interface {
	// Execute runs a command on the remote host and returns its
	// combined output. Connection establishment and retries are the
	// implementation's concern.
	Execute(ctx context.Context, command string) (string, error)

	// Upload copies a local file to the remote path.
	Upload(ctx context.Context, localPath, remotePath string) error
}

// Dialer produces a Communicator for a host. The deployer takes a
// Dialer so tests can substitute an in-memory implementation.
type Dialer func(host string) Communicator
