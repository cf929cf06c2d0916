// Package cloud wraps the cloud provider API behind narrow interfaces.
//
// Every operation is idempotent by resource name: lookups return a
// descriptor or nil for not-found, creations are keyed on the name and
// never duplicate. The reconciler and deployer consume these
// interfaces; tests use the in-memory Fake.
package cloud

import "context"

// Instance describes a compute instance.
type Instance struct {
	ID       int64
	Name     string
	PublicIP string // empty while the instance is still initializing
	Labels   map[string]string
}

// InstanceSpec describes an instance to create.
type InstanceSpec struct {
	Name       string
	ServerType string
	Image      string
	Location   string
	SSHKeys    []string
	Labels     map[string]string
}

// Disk describes a persistent data disk.
type Disk struct {
	ID         int64
	Name       string
	SizeGB     int
	AttachedTo string // instance name, empty when detached
}

// PortRule is one allowed ingress port for the shared firewall.
type PortRule struct {
	Protocol    string // "tcp" or "udp"
	Port        string
	SourceCIDRs []string
}

// Firewall describes the shared peer-traffic firewall.
type Firewall struct {
	ID    int64
	Name  string
	Rules []PortRule
}

// InstanceManager provisions compute instances.
type InstanceManager interface {
	// GetInstance returns the instance descriptor, or nil if no
	// instance with that name exists.
	GetInstance(ctx context.Context, name string) (*Instance, error)

	// CreateInstance creates an instance and waits for the create
	// action to finish. The public IP may not be assigned yet.
	CreateInstance(ctx context.Context, spec InstanceSpec) (*Instance, error)

	// InstanceIP returns the instance's public IPv4, or "" while the
	// address is still being assigned.
	InstanceIP(ctx context.Context, name string) (string, error)

	// ListInstances returns instances matching the label selector.
	ListInstances(ctx context.Context, labelSelector string) ([]Instance, error)
}

// DiskManager provisions persistent disks.
type DiskManager interface {
	// GetDisk returns the disk descriptor, or nil if absent.
	GetDisk(ctx context.Context, name string) (*Disk, error)

	// CreateDisk creates a detached disk in the client's location.
	CreateDisk(ctx context.Context, name string, sizeGB int, labels map[string]string) (*Disk, error)

	// AttachDisk attaches the disk to the instance. Attaching an
	// already-attached disk to the same instance is a no-op.
	AttachDisk(ctx context.Context, diskName, instanceName string) error
}

// FirewallManager maintains the shared peer-traffic firewall.
type FirewallManager interface {
	// GetFirewall returns the firewall descriptor, or nil if absent.
	GetFirewall(ctx context.Context, name string) (*Firewall, error)

	// EnsureFirewall creates the firewall or replaces its rules, and
	// applies it to all instances matching the label selector.
	EnsureFirewall(ctx context.Context, name string, rules []PortRule, labelSelector string, labels map[string]string) error
}

// Provider is the full cloud boundary consumed by the orchestrator.
type Provider interface {
	InstanceManager
	DiskManager
	FirewallManager
}
