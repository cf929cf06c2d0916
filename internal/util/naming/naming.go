// Package naming centralizes cloud resource names. All resources derive
// from the node name declared in the network metadata, so lookups and
// cleanup can always be keyed on the desired-state set.
package naming

import "fmt"

// Instance returns the compute instance name for a node. Node names are
// globally unique and DNS-safe by contract, so they map 1:1 to instances.
func Instance(nodeName string) string {
	return nodeName
}

// DataDisk returns the persistent data disk name for a validator node.
func DataDisk(nodeName string) string {
	return fmt.Sprintf("%s-db", nodeName)
}

// Container returns the reserved Docker container name for a node.
func Container(nodeName string) string {
	return nodeName
}

// P2PFirewall returns the shared firewall rule name for the network.
func P2PFirewall(network string) string {
	return fmt.Sprintf("%s-p2p", network)
}

// HostDataDir returns the on-VM mount point for a validator's data disk.
func HostDataDir(nodeName string) string {
	return fmt.Sprintf("/mnt/disks/%s", nodeName)
}

// BootDataDir returns the on-VM data directory for a boot node, which
// has no persistent disk.
func BootDataDir(nodeName string) string {
	return fmt.Sprintf("/home/ubuntu/%s-data", nodeName)
}
