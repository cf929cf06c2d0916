// Package reconcile drives cloud resources toward the desired node
// set: compute instances, persistent data disks, resolved public IPs,
// and the shared peer-traffic firewall.
//
// Every operation is idempotent by resource name, so re-running the
// stage against unchanged cloud state mutates nothing. One node's
// failure never aborts the others; the stage reports a per-node result
// list and completed nodes stay valid for subsequent runs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/pathfinder-net/deploynet/internal/cloud"
	"github.com/pathfinder-net/deploynet/internal/config"
	"github.com/pathfinder-net/deploynet/internal/orchestrate"
	"github.com/pathfinder-net/deploynet/internal/peers"
	"github.com/pathfinder-net/deploynet/internal/state"
	"github.com/pathfinder-net/deploynet/internal/util/async"
	"github.com/pathfinder-net/deploynet/internal/util/naming"
	"github.com/pathfinder-net/deploynet/internal/util/retry"
)

// StageName identifies this stage in results and logs.
const StageName = "infra"

// ProvisioningTimeoutError reports a node whose public IP never
// appeared within the retry window. Later stages depend on the IP, so
// this is surfaced rather than skipped.
type ProvisioningTimeoutError struct {
	Node string
	Err  error
}

func (e *ProvisioningTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for public IP of node %s: %v", e.Node, e.Err)
}

func (e *ProvisioningTimeoutError) Unwrap() error { return e.Err }

// Options bound the IP resolution retries.
type Options struct {
	IPMaxAttempts  int
	IPInitialDelay time.Duration
}

// Reconciler implements the infra stage.
type Reconciler struct {
	opts Options
}

// New creates a reconciler with default retry bounds.
func New() *Reconciler {
	return NewWithOptions(Options{IPMaxAttempts: 10, IPInitialDelay: 2 * time.Second})
}

// NewWithOptions creates a reconciler with explicit retry bounds.
func NewWithOptions(opts Options) *Reconciler {
	return &Reconciler{opts: opts}
}

// Name implements orchestrate.Stage.
func (r *Reconciler) Name() string { return StageName }

// Run reconciles boot nodes, then validators, then the shared
// firewall. Nodes within a kind run concurrently; boot nodes go first
// so their IPs are cached before any validator needs them for
// bootstrap addresses.
func (r *Reconciler) Run(ctx *orchestrate.Context) error {
	r.reconcileKind(ctx, ctx.Nodes.BootNodes)
	r.reconcileKind(ctx, ctx.Nodes.Validators)

	if err := r.reconcileFirewall(ctx); err != nil {
		return fmt.Errorf("failed to reconcile firewall: %w", err)
	}
	return nil
}

func (r *Reconciler) reconcileKind(ctx *orchestrate.Context, specs []config.NodeSpec) {
	tasks := make([]async.Task, 0, len(specs))
	for _, spec := range specs {
		tasks = append(tasks, async.Task{
			Name: spec.NodeName,
			Func: func(taskCtx context.Context) error {
				return r.reconcileNode(ctx, taskCtx, spec)
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

// reconcileNode ensures instance, disk and resolved IP for one node,
// then records the provisioning facts in the state store.
func (r *Reconciler) reconcileNode(ctx *orchestrate.Context, taskCtx context.Context, spec config.NodeSpec) error {
	instanceName := naming.Instance(spec.NodeName)
	labels := map[string]string{
		"network": ctx.Config.Network,
		"team":    spec.Team,
		"role":    string(spec.Kind),
	}

	instance, err := ctx.Cloud.GetInstance(taskCtx, instanceName)
	if err != nil {
		return err
	}
	if instance == nil {
		ctx.Log.Printf("[Infra:%s] creating instance", spec.NodeName)
		instance, err = ctx.Cloud.CreateInstance(taskCtx, cloud.InstanceSpec{
			Name:       instanceName,
			ServerType: ctx.Config.ServerType,
			Image:      ctx.Config.Image,
			Location:   ctx.Config.Location,
			SSHKeys:    sshKeys(ctx.Config),
			Labels:     labels,
		})
		if err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}
	} else {
		ctx.Log.Printf("[Infra:%s] instance exists, reusing", spec.NodeName)
	}

	if spec.Kind == config.KindValidator {
		if err := r.reconcileDisk(ctx, taskCtx, spec, labels); err != nil {
			return err
		}
	}

	ip, err := r.resolveIP(ctx, taskCtx, spec.NodeName, instance)
	if err != nil {
		return err
	}

	return ctx.Store.Upsert(spec.NodeName, state.Node{
		Team:    spec.Team,
		Address: spec.Address,
		PeerID:  spec.PeerID,
		IP:      ip,
	})
}

// reconcileDisk ensures the validator's data disk exists and is
// attached. A run config declaring db_disk_gb 0 opts out of persistent
// storage; an unresolvable run config falls back to the default size
// so infra can proceed, leaving the configuration error to surface at
// deploy time.
func (r *Reconciler) reconcileDisk(ctx *orchestrate.Context, taskCtx context.Context, spec config.NodeSpec, labels map[string]string) error {
	sizeGB := config.DefaultDBDiskGB
	if runCfg, err := ctx.RunConfigs.Resolve(spec.Team, spec.Kind); err == nil {
		sizeGB = runCfg.DBDiskGB
	} else {
		ctx.Log.Printf("[Infra:%s] run config unavailable (%v), assuming %dGB disk", spec.NodeName, err, sizeGB)
	}
	if sizeGB == 0 {
		return nil
	}

	diskName := naming.DataDisk(spec.NodeName)
	disk, err := ctx.Cloud.GetDisk(taskCtx, diskName)
	if err != nil {
		return err
	}
	if disk == nil {
		ctx.Log.Printf("[Infra:%s] creating %dGB data disk", spec.NodeName, sizeGB)
		if _, err := ctx.Cloud.CreateDisk(taskCtx, diskName, sizeGB, labels); err != nil {
			return fmt.Errorf("failed to create disk: %w", err)
		}
	}

	if err := ctx.Cloud.AttachDisk(taskCtx, diskName, naming.Instance(spec.NodeName)); err != nil {
		return fmt.Errorf("failed to attach disk: %w", err)
	}
	return nil
}

// resolveIP polls for the instance's public IP with bounded backoff.
func (r *Reconciler) resolveIP(ctx *orchestrate.Context, taskCtx context.Context, nodeName string, instance *cloud.Instance) (string, error) {
	if instance.PublicIP != "" {
		return instance.PublicIP, nil
	}

	var ip string
	err := retry.Do(taskCtx, func() error {
		var lookupErr error
		ip, lookupErr = ctx.Cloud.InstanceIP(taskCtx, naming.Instance(nodeName))
		if lookupErr != nil {
			return lookupErr
		}
		if ip == "" {
			return errors.New("public IP not yet assigned")
		}
		return nil
	}, retry.WithMaxAttempts(r.opts.IPMaxAttempts), retry.WithInitialDelay(r.opts.IPInitialDelay))
	if err != nil {
		return "", &ProvisioningTimeoutError{Node: nodeName, Err: err}
	}
	return ip, nil
}

// reconcileFirewall ensures a single shared rule permitting the union
// of the validators' listen ports between group members only. Sources
// are the resolved public IPs of the desired set, not the public
// internet. The rule is updated only when the computed rules differ
// from the live ones.
func (r *Reconciler) reconcileFirewall(ctx *orchestrate.Context) error {
	ports, err := peers.ListenPorts(ctx.Nodes.Validators)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		ctx.Log.Printf("[Infra:Firewall] no listen ports declared, skipping firewall")
		return nil
	}

	var sources []string
	for _, spec := range ctx.Nodes.All() {
		if ip, ok := ctx.Store.IP(spec.NodeName); ok {
			sources = append(sources, ip+"/32")
		}
	}
	if len(sources) == 0 {
		ctx.Log.Printf("[Infra:Firewall] no resolved IPs yet, skipping firewall")
		return nil
	}

	// An applied firewall denies everything it does not list, so SSH
	// stays open for the deploy stage.
	rules := make([]cloud.PortRule, 0, len(ports)+1)
	rules = append(rules, cloud.PortRule{
		Protocol:    "tcp",
		Port:        "22",
		SourceCIDRs: []string{"0.0.0.0/0", "::/0"},
	})
	for _, port := range ports {
		rules = append(rules, cloud.PortRule{
			Protocol:    port.Protocol,
			Port:        port.Port,
			SourceCIDRs: sources,
		})
	}

	name := naming.P2PFirewall(ctx.Config.Network)
	selector := "network=" + ctx.Config.Network

	existing, err := ctx.Cloud.GetFirewall(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil && reflect.DeepEqual(existing.Rules, rules) {
		ctx.Log.Printf("[Infra:Firewall] %s is up to date", name)
		return nil
	}

	ctx.Log.Printf("[Infra:Firewall] ensuring %s with %d rules", name, len(rules))
	return ctx.Cloud.EnsureFirewall(ctx, name, rules, selector, map[string]string{"network": ctx.Config.Network})
}

func sshKeys(cfg *config.Config) []string {
	if cfg.SSHKeyName == "" {
		return nil
	}
	return []string{cfg.SSHKeyName}
}
