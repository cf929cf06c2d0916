package cloud

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is an in-memory Provider for tests. Resources behave like the
// real API: lookups return nil for not-found, creations are keyed on
// name, attachments are idempotent. Hooks allow tests to inject
// failures and delayed IP assignment.
type Fake struct {
	mu        sync.Mutex
	instances map[string]*Instance
	disks     map[string]*Disk
	firewalls map[string]*Firewall
	nextID    int64

	// IPAssignAfter delays IP visibility: a positive value for a node
	// means that many InstanceIP calls return "" before the address
	// appears.
	IPAssignAfter map[string]int

	// FailCreateInstance lists node names whose creation should fail.
	FailCreateInstance map[string]error

	// Counters for idempotence assertions.
	CreateInstanceCalls int
	CreateDiskCalls     int
	AttachDiskCalls     int
	InstanceIPCalls     map[string]int
	EnsureFirewallCalls int
}

// NewFake returns an empty in-memory provider.
func NewFake() *Fake {
	return &Fake{
		instances:          make(map[string]*Instance),
		disks:              make(map[string]*Disk),
		firewalls:          make(map[string]*Firewall),
		IPAssignAfter:      make(map[string]int),
		FailCreateInstance: make(map[string]error),
		InstanceIPCalls:    make(map[string]int),
	}
}

// SeedInstance pre-creates an instance, as if provisioned by an
// earlier run.
func (f *Fake) SeedInstance(name, ip string, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.instances[name] = &Instance{ID: f.nextID, Name: name, PublicIP: ip, Labels: labels}
}

// GetInstance implements InstanceManager.
func (f *Fake) GetInstance(_ context.Context, name string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	instance, ok := f.instances[name]
	if !ok {
		return nil, nil
	}
	copied := *instance
	return &copied, nil
}

// CreateInstance implements InstanceManager.
func (f *Fake) CreateInstance(_ context.Context, spec InstanceSpec) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateInstanceCalls++

	if err, ok := f.FailCreateInstance[spec.Name]; ok {
		return nil, err
	}
	if _, ok := f.instances[spec.Name]; ok {
		return nil, fmt.Errorf("instance %s already exists", spec.Name)
	}

	f.nextID++
	instance := &Instance{
		ID:     f.nextID,
		Name:   spec.Name,
		Labels: spec.Labels,
	}
	if f.IPAssignAfter[spec.Name] == 0 {
		instance.PublicIP = fakeIP(instance.ID)
	}
	f.instances[spec.Name] = instance
	copied := *instance
	return &copied, nil
}

// InstanceIP implements InstanceManager, honoring IPAssignAfter delays.
func (f *Fake) InstanceIP(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InstanceIPCalls[name]++

	instance, ok := f.instances[name]
	if !ok {
		return "", fmt.Errorf("server not found: %s", name)
	}
	if remaining := f.IPAssignAfter[name]; remaining > 0 {
		f.IPAssignAfter[name] = remaining - 1
		return "", nil
	}
	if instance.PublicIP == "" {
		instance.PublicIP = fakeIP(instance.ID)
	}
	return instance.PublicIP, nil
}

// ListInstances implements InstanceManager with exact-match label
// selectors of the form "key=value" joined by commas.
func (f *Fake) ListInstances(_ context.Context, labelSelector string) ([]Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Instance
	for _, instance := range f.instances {
		if matchesSelector(instance.Labels, labelSelector) {
			out = append(out, *instance)
		}
	}
	return out, nil
}

// GetDisk implements DiskManager.
func (f *Fake) GetDisk(_ context.Context, name string) (*Disk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	disk, ok := f.disks[name]
	if !ok {
		return nil, nil
	}
	copied := *disk
	return &copied, nil
}

// CreateDisk implements DiskManager.
func (f *Fake) CreateDisk(_ context.Context, name string, sizeGB int, _ map[string]string) (*Disk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateDiskCalls++

	if _, ok := f.disks[name]; ok {
		return nil, fmt.Errorf("disk %s already exists", name)
	}
	f.nextID++
	disk := &Disk{ID: f.nextID, Name: name, SizeGB: sizeGB}
	f.disks[name] = disk
	copied := *disk
	return &copied, nil
}

// AttachDisk implements DiskManager.
func (f *Fake) AttachDisk(_ context.Context, diskName, instanceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AttachDiskCalls++

	disk, ok := f.disks[diskName]
	if !ok {
		return fmt.Errorf("volume not found: %s", diskName)
	}
	if _, ok := f.instances[instanceName]; !ok {
		return fmt.Errorf("server not found: %s", instanceName)
	}
	if disk.AttachedTo != "" && disk.AttachedTo != instanceName {
		return fmt.Errorf("volume %s is attached to another server", diskName)
	}
	disk.AttachedTo = instanceName
	return nil
}

// GetFirewall implements FirewallManager.
func (f *Fake) GetFirewall(_ context.Context, name string) (*Firewall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	firewall, ok := f.firewalls[name]
	if !ok {
		return nil, nil
	}
	copied := *firewall
	copied.Rules = append([]PortRule(nil), firewall.Rules...)
	return &copied, nil
}

// EnsureFirewall implements FirewallManager.
func (f *Fake) EnsureFirewall(_ context.Context, name string, rules []PortRule, _ string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EnsureFirewallCalls++

	firewall, ok := f.firewalls[name]
	if !ok {
		f.nextID++
		firewall = &Firewall{ID: f.nextID, Name: name}
		f.firewalls[name] = firewall
	}
	firewall.Rules = append([]PortRule(nil), rules...)
	return nil
}

func fakeIP(id int64) string {
	return fmt.Sprintf("10.0.0.%d", id)
}

func matchesSelector(labels map[string]string, selector string) bool {
	if selector == "" {
		return true
	}
	for _, part := range strings.Split(selector, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			if _, ok := labels[part]; !ok {
				return false
			}
			continue
		}
		if labels[key] != value {
			return false
		}
	}
	return true
}
