// Package gcp stops the Compute Engine VM foundry runs on once there is
// no work left.
package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/compute/metadata"
	compute "google.golang.org/api/compute/v1"
)

// metadataTimeout bounds each metadata server lookup.
const metadataTimeout = 2 * time.Second

// Metadata reads facts about the current VM.
type Metadata interface {
	OnGCE() bool
	ProjectID(ctx context.Context) (string, error)
	Zone(ctx context.Context) (string, error)
	InstanceName(ctx context.Context) (string, error)
}

// Stopper issues the stop request for an instance.
type Stopper interface {
	Stop(ctx context.Context, project, zone, instance string) error
}

// Host stops the VM it runs on.
type Host struct {
	meta    Metadata
	stopper Stopper
	logger  *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithMetadata replaces the metadata server client.
func WithMetadata(m Metadata) Option {
	return func(h *Host) { h.meta = m }
}

// WithStopper replaces the Compute Engine API client.
func WithStopper(s Stopper) Option {
	return func(h *Host) { h.stopper = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// NewHost creates a Host backed by the metadata server and the Compute
// Engine API unless overridden.
func NewHost(opts ...Option) *Host {
	h := &Host{
		meta:    serverMetadata{},
		stopper: &apiStopper{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StopIfIdle stops the current instance. It reports false, without an
// error, when not running on Compute Engine.
func (h *Host) StopIfIdle(ctx context.Context) (bool, error) {
	if !h.meta.OnGCE() {
		h.logger.Info("not running on GCE, skipping instance stop")
		return false, nil
	}

	project, err := lookup(ctx, h.meta.ProjectID)
	if err != nil {
		return false, fmt.Errorf("read project id: %w", err)
	}
	zone, err := lookup(ctx, h.meta.Zone)
	if err != nil {
		return false, fmt.Errorf("read zone: %w", err)
	}
	name, err := lookup(ctx, h.meta.InstanceName)
	if err != nil {
		return false, fmt.Errorf("read instance name: %w", err)
	}

	log := h.logger.With("project", project, "zone", zone, "instance", name)
	log.Info("stopping instance")
	if err := h.stopper.Stop(ctx, project, zone, name); err != nil {
		return false, fmt.Errorf("stop instance %s: %w", name, err)
	}
	log.Info("instance stop issued")
	return true, nil
}

func lookup(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	return fn(ctx)
}

type serverMetadata struct{}

func (serverMetadata) OnGCE() bool { return metadata.OnGCE() }

func (serverMetadata) ProjectID(ctx context.Context) (string, error) {
	return metadata.ProjectIDWithContext(ctx)
}

func (serverMetadata) Zone(ctx context.Context) (string, error) {
	return metadata.ZoneWithContext(ctx)
}

func (serverMetadata) InstanceName(ctx context.Context) (string, error) {
	return metadata.InstanceNameWithContext(ctx)
}

// apiStopper uses the VM's default service account, which needs the
// compute.instances.stop permission on itself.
type apiStopper struct{}

func (*apiStopper) Stop(ctx context.Context, project, zone, instance string) error {
	svc, err := compute.NewService(ctx)
	if err != nil {
		return fmt.Errorf("create compute service: %w", err)
	}
	if _, err := svc.Instances.Stop(project, zone, instance).Context(ctx).Do(); err != nil {
		return err
	}
	return nil
}
