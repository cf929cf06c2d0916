package cloud

import (
	"context"
	"fmt"
	"net"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// Client implements Provider using the Hetzner Cloud API.
type Client struct {
	hc       *hcloud.Client
	location string
}

// NewClient creates a Provider bound to one location. The token is
// passed explicitly; there is no ambient process-wide client.
func NewClient(token, location string) *Client {
	return &Client{
		hc:       hcloud.NewClient(hcloud.WithToken(token)),
		location: location,
	}
}

// --- InstanceManager ---

// GetInstance returns the instance descriptor, or nil if absent.
func (c *Client) GetInstance(ctx context.Context, name string) (*Instance, error) {
	server, _, err := c.hc.Server.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", name, err)
	}
	if server == nil {
		return nil, nil
	}
	return instanceFromServer(server), nil
}

// CreateInstance creates a server and waits for the create action.
func (c *Client) CreateInstance(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	serverType, _, err := c.hc.ServerType.Get(ctx, spec.ServerType)
	if err != nil {
		return nil, fmt.Errorf("failed to get server type %s: %w", spec.ServerType, err)
	}
	if serverType == nil {
		return nil, fmt.Errorf("server type not found: %s", spec.ServerType)
	}

	image, _, err := c.hc.Image.GetForArchitecture(ctx, spec.Image, serverType.Architecture)
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", spec.Image, err)
	}
	if image == nil {
		return nil, fmt.Errorf("image not found: %s", spec.Image)
	}

	location := spec.Location
	if location == "" {
		location = c.location
	}
	locationObj, _, err := c.hc.Location.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to get location %s: %w", location, err)
	}
	if locationObj == nil {
		return nil, fmt.Errorf("location not found: %s", location)
	}

	var sshKeys []*hcloud.SSHKey
	for _, key := range spec.SSHKeys {
		keyObj, _, err := c.hc.SSHKey.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to get ssh key %s: %w", key, err)
		}
		if keyObj == nil {
			return nil, fmt.Errorf("ssh key not found: %s", key)
		}
		sshKeys = append(sshKeys, keyObj)
	}

	result, _, err := c.hc.Server.Create(ctx, hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: serverType,
		Image:      image,
		Location:   locationObj,
		SSHKeys:    sshKeys,
		Labels:     spec.Labels,
		PublicNet: &hcloud.ServerCreatePublicNet{
			EnableIPv4: true,
			EnableIPv6: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server %s: %w", spec.Name, err)
	}

	actions := append([]*hcloud.Action{result.Action}, result.NextActions...)
	if err := c.hc.Action.WaitFor(ctx, actions...); err != nil {
		return nil, fmt.Errorf("failed to wait for server creation: %w", err)
	}

	return instanceFromServer(result.Server), nil
}

// InstanceIP returns the server's public IPv4, or "" if not yet assigned.
func (c *Client) InstanceIP(ctx context.Context, name string) (string, error) {
	server, _, err := c.hc.Server.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to get server %s: %w", name, err)
	}
	if server == nil {
		return "", fmt.Errorf("server not found: %s", name)
	}
	return publicIPv4(server), nil
}

// ListInstances returns servers matching the label selector.
func (c *Client) ListInstances(ctx context.Context, labelSelector string) ([]Instance, error) {
	servers, err := c.hc.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: labelSelector},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	instances := make([]Instance, 0, len(servers))
	for _, server := range servers {
		instances = append(instances, *instanceFromServer(server))
	}
	return instances, nil
}

// --- DiskManager ---

// GetDisk returns the volume descriptor, or nil if absent.
func (c *Client) GetDisk(ctx context.Context, name string) (*Disk, error) {
	volume, _, err := c.hc.Volume.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get volume %s: %w", name, err)
	}
	if volume == nil {
		return nil, nil
	}
	return diskFromVolume(volume), nil
}

// CreateDisk creates a detached volume in the client's location.
func (c *Client) CreateDisk(ctx context.Context, name string, sizeGB int, labels map[string]string) (*Disk, error) {
	locationObj, _, err := c.hc.Location.Get(ctx, c.location)
	if err != nil {
		return nil, fmt.Errorf("failed to get location %s: %w", c.location, err)
	}

	result, _, err := c.hc.Volume.Create(ctx, hcloud.VolumeCreateOpts{
		Name:     name,
		Size:     sizeGB,
		Location: locationObj,
		Labels:   labels,
		Format:   hcloud.Ptr("ext4"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	if result.Action != nil {
		if err := c.hc.Action.WaitFor(ctx, result.Action); err != nil {
			return nil, fmt.Errorf("failed to wait for volume creation: %w", err)
		}
	}
	return diskFromVolume(result.Volume), nil
}

// AttachDisk attaches the volume to the server; a no-op if already
// attached there.
func (c *Client) AttachDisk(ctx context.Context, diskName, instanceName string) error {
	volume, _, err := c.hc.Volume.Get(ctx, diskName)
	if err != nil {
		return fmt.Errorf("failed to get volume %s: %w", diskName, err)
	}
	if volume == nil {
		return fmt.Errorf("volume not found: %s", diskName)
	}

	server, _, err := c.hc.Server.Get(ctx, instanceName)
	if err != nil {
		return fmt.Errorf("failed to get server %s: %w", instanceName, err)
	}
	if server == nil {
		return fmt.Errorf("server not found: %s", instanceName)
	}

	if volume.Server != nil {
		if volume.Server.ID == server.ID {
			return nil
		}
		return fmt.Errorf("volume %s is attached to another server (id %d)", diskName, volume.Server.ID)
	}

	action, _, err := c.hc.Volume.Attach(ctx, volume, server)
	if err != nil {
		return fmt.Errorf("failed to attach volume %s to %s: %w", diskName, instanceName, err)
	}
	if err := c.hc.Action.WaitFor(ctx, action); err != nil {
		return fmt.Errorf("failed to wait for volume attach: %w", err)
	}
	return nil
}

// --- FirewallManager ---

// GetFirewall returns the firewall descriptor, or nil if absent.
func (c *Client) GetFirewall(ctx context.Context, name string) (*Firewall, error) {
	firewall, _, err := c.hc.Firewall.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get firewall %s: %w", name, err)
	}
	if firewall == nil {
		return nil, nil
	}
	return firewallFromHcloud(firewall), nil
}

// EnsureFirewall creates the firewall with the given rules or replaces
// the rules of an existing one. The firewall is applied to all servers
// matching the label selector, so group membership tracks labels rather
// than a fixed server list.
func (c *Client) EnsureFirewall(ctx context.Context, name string, rules []PortRule, labelSelector string, labels map[string]string) error {
	hcloudRules, err := rulesToHcloud(rules)
	if err != nil {
		return err
	}

	existing, _, err := c.hc.Firewall.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to get firewall %s: %w", name, err)
	}

	if existing != nil {
		actions, _, err := c.hc.Firewall.SetRules(ctx, existing, hcloud.FirewallSetRulesOpts{Rules: hcloudRules})
		if err != nil {
			return fmt.Errorf("failed to update firewall rules: %w", err)
		}
		if err := c.hc.Action.WaitFor(ctx, actions...); err != nil {
			return fmt.Errorf("failed to wait for firewall update: %w", err)
		}
		return nil
	}

	result, _, err := c.hc.Firewall.Create(ctx, hcloud.FirewallCreateOpts{
		Name:   name,
		Rules:  hcloudRules,
		Labels: labels,
		ApplyTo: []hcloud.FirewallResource{{
			Type: hcloud.FirewallResourceTypeLabelSelector,
			LabelSelector: &hcloud.FirewallResourceLabelSelector{
				Selector: labelSelector,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to create firewall %s: %w", name, err)
	}
	if err := c.hc.Action.WaitFor(ctx, result.Actions...); err != nil {
		return fmt.Errorf("failed to wait for firewall creation: %w", err)
	}
	return nil
}

// --- conversions ---

func instanceFromServer(server *hcloud.Server) *Instance {
	return &Instance{
		ID:       server.ID,
		Name:     server.Name,
		PublicIP: publicIPv4(server),
		Labels:   server.Labels,
	}
}

func publicIPv4(server *hcloud.Server) string {
	ip := server.PublicNet.IPv4.IP
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}

func diskFromVolume(volume *hcloud.Volume) *Disk {
	disk := &Disk{
		ID:     volume.ID,
		Name:   volume.Name,
		SizeGB: volume.Size,
	}
	if volume.Server != nil {
		// Volume.Server carries only the ID; the name is resolved
		// lazily by callers that need it. Attachment checks compare
		// against the ID-bearing descriptor.
		disk.AttachedTo = fmt.Sprintf("%d", volume.Server.ID)
	}
	return disk
}

func firewallFromHcloud(firewall *hcloud.Firewall) *Firewall {
	out := &Firewall{ID: firewall.ID, Name: firewall.Name}
	for _, rule := range firewall.Rules {
		if rule.Direction != hcloud.FirewallRuleDirectionIn || rule.Port == nil {
			continue
		}
		converted := PortRule{
			Protocol: string(rule.Protocol),
			Port:     *rule.Port,
		}
		for _, src := range rule.SourceIPs {
			converted.SourceCIDRs = append(converted.SourceCIDRs, src.String())
		}
		out.Rules = append(out.Rules, converted)
	}
	return out
}

func rulesToHcloud(rules []PortRule) ([]hcloud.FirewallRule, error) {
	out := make([]hcloud.FirewallRule, 0, len(rules))
	for _, rule := range rules {
		var protocol hcloud.FirewallRuleProtocol
		switch rule.Protocol {
		case "tcp":
			protocol = hcloud.FirewallRuleProtocolTCP
		case "udp":
			protocol = hcloud.FirewallRuleProtocolUDP
		default:
			return nil, fmt.Errorf("unsupported firewall protocol %q", rule.Protocol)
		}

		converted := hcloud.FirewallRule{
			Direction: hcloud.FirewallRuleDirectionIn,
			Protocol:  protocol,
			Port:      hcloud.Ptr(rule.Port),
		}
		for _, cidr := range rule.SourceCIDRs {
			_, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, fmt.Errorf("invalid source CIDR %s: %w", cidr, err)
			}
			converted.SourceIPs = append(converted.SourceIPs, *ipNet)
		}
		out = append(out, converted)
	}
	return out, nil
}
