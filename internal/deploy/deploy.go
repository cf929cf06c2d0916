// Package deploy runs the application stage: it connects to each
// provisioned VM over SSH and (re)starts the node container from the
// team's run config.
//
// The stage is decoupled from provisioning. It consumes IPs from the
// state store, falling back to a single live lookup per node, so a
// redeploy touches no cloud resources when the cache is warm. Per-node
// failures are reported individually and never abort sibling nodes.
package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
	"github.com/pathfinder-net/deploynet/internal/peers"
	"github.com/pathfinder-net/deploynet/internal/ssh"
	"github.com/pathfinder-net/deploynet/internal/template"
	"github.com/pathfinder-net/deploynet/internal/util/async"
	"github.com/pathfinder-net/deploynet/internal/util/naming"
)

// StageName identifies this stage in results and logs.
const StageName = "app"

// RemoteIdentityPath is where a node's identity key lands on the VM
// before being bind-mounted into the container.
const RemoteIdentityPath = "/home/ubuntu/identity.json"

const installDockerCmd = "if ! command -v docker > /dev/null; then sudo apt-get update && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y docker.io; fi"

// Deployer implements the app stage.
type Deployer struct {
	dial ssh.Dialer
}

// New creates a deployer that reaches VMs through dial.
func New(dial ssh.Dialer) *Deployer {
	return &Deployer{dial: dial}
}

// Name implements orchestrate.Stage.
func (d *Deployer) Name() string { return StageName }

// Run deploys boot nodes, then validators, concurrently within each
// kind. Boot nodes go first so a fresh network has live bootstrap
// targets by the time validators start.
func (d *Deployer) Run(ctx *orchestrate.Context) error {
	resolver := peers.NewResolver(ctx.Nodes, ctx.Store, func(lookupCtx context.Context, nodeName string) (string, error) {
		return ctx.Cloud.InstanceIP(lookupCtx, naming.Instance(nodeName))
	}, ctx.Config.PeerAddressStyle)

	d.deployKind(ctx, resolver, ctx.Nodes.BootNodes)
	d.deployKind(ctx, resolver, ctx.Nodes.Validators)
	return nil
}

func (d *Deployer) deployKind(ctx *orchestrate.Context, resolver *peers.Resolver, specs []config.NodeSpec) {
	tasks := make([]async.Task, 0, len(specs))
	for _, spec := range specs {
		tasks = append(tasks, async.Task{
			Name: spec.NodeName,
			Func: func(taskCtx context.Context) error {
				return d.deployNode(ctx, taskCtx, resolver, spec)
			},
		})
	}

	for _, result := range async.Run(ctx, tasks) {
		spec, _ := ctx.Nodes.ByName(result.Name)
		ctx.Results.Add(orchestrate.NodeResult{
			Node:  result.Name,
			Team:  spec.Team,
			Kind:  spec.Kind,
			Stage: StageName,
			Err:   result.Err,
		})
	}
}

// deployNode restarts one node's container. The run config is resolved
// strictly here: a missing file or missing required key fails this node
// before any remote command runs.
func (d *Deployer) deployNode(ctx *orchestrate.Context, taskCtx context.Context, resolver *peers.Resolver, spec config.NodeSpec) error {
	runCfg, err := ctx.RunConfigs.Resolve(spec.Team, spec.Kind)
	if err != nil {
		return err
	}

	ip, err := resolver.NodeIP(taskCtx, spec.NodeName)
	if err != nil {
		return err
	}

	ctx.Log.Printf("[App:%s] deploying to %s", spec.NodeName, ip)
	comm := d.dial(ip)

	if _, err := comm.Execute(taskCtx, installDockerCmd); err != nil {
		return fmt.Errorf("failed to ensure docker: %w", err)
	}

	// The identity key goes up before the container ever starts, so a
	// node can never come up without its key material.
	if err := comm.Upload(taskCtx, spec.IdentityFile(ctx.Config.TeamsDir), RemoteIdentityPath); err != nil {
		return fmt.Errorf("failed to upload identity file: %w", err)
	}
	user := ctx.Config.SSHUser
	chownCmd := fmt.Sprintf("sudo chown %s:%s %s && sudo chmod 644 %s", user, user, RemoteIdentityPath, RemoteIdentityPath)
	if _, err := comm.Execute(taskCtx, chownCmd); err != nil {
		return fmt.Errorf("failed to fix identity permissions: %w", err)
	}

	hostDataDir, err := d.prepareDataDir(ctx, taskCtx, comm, spec, runCfg)
	if err != nil {
		return err
	}

	vars, err := d.nodeVariables(ctx, taskCtx, resolver, spec)
	if err != nil {
		return err
	}
	args, err := template.Render(runCfg.Cmd, vars)
	if err != nil {
		return err
	}

	name := naming.Container(spec.NodeName)
	stopCmd := fmt.Sprintf("sudo docker stop %s 2>/dev/null || true && sudo docker rm %s 2>/dev/null || true", name, name)
	if _, err := comm.Execute(taskCtx, stopCmd); err != nil {
		return fmt.Errorf("failed to stop previous container: %w", err)
	}
	if _, err := comm.Execute(taskCtx, fmt.Sprintf("sudo docker pull %s", runCfg.Image)); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	if _, err := comm.Execute(taskCtx, composeRunCommand(name, runCfg, hostDataDir, args)); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// prepareDataDir makes the node's data directory available on the VM.
// Validators with a persistent disk wait for the volume device and
// mount it; boot nodes and diskless validators use a plain directory.
func (d *Deployer) prepareDataDir(ctx *orchestrate.Context, taskCtx context.Context, comm ssh.Communicator, spec config.NodeSpec, runCfg *config.RunConfig) (string, error) {
	user := ctx.Config.SSHUser

	if spec.Kind == config.KindBoot {
		dir := naming.BootDataDir(spec.NodeName)
		if _, err := comm.Execute(taskCtx, fmt.Sprintf("mkdir -p %s", dir)); err != nil {
			return "", fmt.Errorf("failed to create data dir: %w", err)
		}
		return dir, nil
	}

	dir := naming.HostDataDir(spec.NodeName)
	if runCfg.DBDiskGB == 0 {
		cmd := fmt.Sprintf("sudo mkdir -p %s && sudo chown %s:%s %s", dir, user, user, dir)
		if _, err := comm.Execute(taskCtx, cmd); err != nil {
			return "", fmt.Errorf("failed to create data dir: %w", err)
		}
		return dir, nil
	}

	diskName := naming.DataDisk(spec.NodeName)
	disk, err := ctx.Cloud.GetDisk(taskCtx, diskName)
	if err != nil {
		return "", err
	}
	if disk == nil {
		return "", fmt.Errorf("data disk %s does not exist, provision infra first", diskName)
	}

	device := volumeDevice(disk.ID)
	commands := []string{
		"sudo udevadm settle --timeout=30",
		fmt.Sprintf("sudo mkdir -p %s", dir),
		fmt.Sprintf("mountpoint -q %s || sudo mount -o discard,defaults %s %s", dir, device, dir),
		fmt.Sprintf("sudo chown %s:%s %s", user, user, dir),
	}
	for _, cmd := range commands {
		if _, err := comm.Execute(taskCtx, cmd); err != nil {
			return "", fmt.Errorf("failed to mount data disk %s: %w", diskName, err)
		}
	}
	return dir, nil
}

// nodeVariables assembles the substitution mapping for the node's
// command templates. peer_addrs and bootstrap_addrs are aliases.
func (d *Deployer) nodeVariables(ctx *orchestrate.Context, taskCtx context.Context, resolver *peers.Resolver, spec config.NodeSpec) (map[string]string, error) {
	peerAddrs, err := resolver.PeerAddrs(taskCtx, spec)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"address":          spec.Address,
		"node_name":        spec.NodeName,
		"peer_id":          spec.PeerID,
		"team":             spec.Team,
		"listen_addresses": strings.Join(spec.ListenAddresses, ","),
		"peer_addrs":       peerAddrs,
		"bootstrap_addrs":  peerAddrs,
		"validator_addrs":  resolver.ValidatorAddrs(spec),
		"network":          ctx.Config.Network,
	}, nil
}

// composeRunCommand builds the docker run invocation. Containers use
// host networking so P2P applications bind the VM's interfaces
// directly, with no port publishing.
func composeRunCommand(name string, runCfg *config.RunConfig, hostDataDir string, args []string) string {
	var b strings.Builder
	b.WriteString("sudo docker run -d --restart unless-stopped \\\n")
	b.WriteString("  --network=host \\\n")
	fmt.Fprintf(&b, "  -v %s:%s \\\n", hostDataDir, runCfg.DataDir)
	fmt.Fprintf(&b, "  -v %s:%s \\\n", RemoteIdentityPath, runCfg.P2PIdentityPath)

	keys := make([]string, 0, len(runCfg.Env))
	for k := range runCfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  -e %s=%s \\\n", k, runCfg.Env[k])
	}

	fmt.Fprintf(&b, "  --name %s %s", name, runCfg.Image)
	for _, arg := range args {
		b.WriteString(" \\\n  " + arg)
	}
	return b.String()
}

// volumeDevice returns the stable udev path of an attached volume.
func volumeDevice(id int64) string {
	return fmt.Sprintf("/dev/disk/by-id/scsi-0HC_Volume_%d", id)
}
