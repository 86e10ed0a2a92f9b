// Package lifecycle implements the network interface lifecycle
// operations: create, attach, detach, clean, secondary address
// assignment, and elastic address management. Each operation drives the
// cloud API and the local OS view to convergence before returning, so a
// successful call means the state it names is actually observable.
package lifecycle

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/config"
	"github.com/johnlam90/aws-eni-manager/pkg/metadata"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
	"github.com/johnlam90/aws-eni-manager/pkg/observability"
	"github.com/johnlam90/aws-eni-manager/pkg/poll"
)

// IdentitySource supplies the instance's network identity.
type IdentitySource interface {
	Identity(ctx context.Context) (*metadata.NetworkIdentity, error)
}

// Manager executes lifecycle operations. Collaborators are built
// lazily on first use so that operations which never touch the cloud
// or the metadata service do not pay for them; construction is guarded
// by a mutex, making concurrent first use safe. Operations themselves
// are not serialized against each other.
type Manager struct {
	cfg     *config.Settings
	metrics *observability.Metrics
	slog    *observability.StructuredLogger

	// Logger is used for structured logging.
	Logger logr.Logger

	mu    sync.Mutex
	cloud aws.CloudClient
	local netif.LocalInterface
	meta  *metadata.Client
	env   IdentitySource
}

// Option customizes a Manager, mainly to inject test doubles.
type Option func(*Manager)

// WithCloudClient supplies the cloud client instead of building one
// from the instance's region and credentials.
func WithCloudClient(cloud aws.CloudClient) Option {
	return func(m *Manager) { m.cloud = cloud }
}

// WithLocalInterface supplies the OS-side interface manager.
func WithLocalInterface(local netif.LocalInterface) Option {
	return func(m *Manager) { m.local = local }
}

// WithIdentitySource supplies the instance identity instead of
// resolving it through the metadata service.
func WithIdentitySource(env IdentitySource) Option {
	return func(m *Manager) { m.env = env }
}

// WithMetrics enables metric recording for operations and waits.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a lifecycle manager with the given settings.
func NewManager(cfg *config.Settings, logger logr.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		Logger: logger.WithName("lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.slog = observability.NewStructuredLogger(m.Logger, m.metrics)
	return m
}

// localInterface returns the OS-side manager, building the metadata
// backed one on first use.
func (m *Manager) localInterface() netif.LocalInterface {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localLocked()
}

func (m *Manager) localLocked() netif.LocalInterface {
	if m.local == nil {
		m.local = netif.NewManager(m.metaLocked(), m.Logger)
	}
	return m.local
}

func (m *Manager) metaLocked() *metadata.Client {
	if m.meta == nil {
		conn := metadata.NewConnector(m.cfg, m.Logger)
		m.meta = metadata.NewClient(conn, m.Logger)
	}
	return m.meta
}

func (m *Manager) envLocked() IdentitySource {
	if m.env == nil {
		local := m.localLocked()
		m.env = metadata.NewEnvironment(m.metaLocked(), local, m.Logger)
	}
	return m.env
}

// identity returns the instance's network identity, resolving it on
// first use.
func (m *Manager) identity(ctx context.Context) (*metadata.NetworkIdentity, error) {
	m.mu.Lock()
	env := m.envLocked()
	m.mu.Unlock()
	return env.Identity(ctx)
}

// Identity reports the network identity of the instance the manager
// operates on.
func (m *Manager) Identity(ctx context.Context) (*metadata.NetworkIdentity, error) {
	return m.identity(ctx)
}

// VerifyCredentials resolves the cloud client and checks the caller
// identity, surfacing credential problems before any mutating call.
// Returns the caller ARN. A client without an identity check passes
// vacuously.
func (m *Manager) VerifyCredentials(ctx context.Context) (string, error) {
	cloud, err := m.cloudClient(ctx)
	if err != nil {
		return "", err
	}
	verifier, ok := cloud.(interface {
		VerifyIdentity(ctx context.Context) (string, error)
	})
	if !ok {
		return "", nil
	}
	return verifier.VerifyIdentity(ctx)
}

// LocalInterface exposes the OS-side device manager for callers that
// need direct device access, such as reachability tests.
func (m *Manager) LocalInterface() netif.LocalInterface {
	return m.localInterface()
}

// cloudClient returns the cloud client, building one on first use. The
// region comes from configuration when set, otherwise from the
// instance identity.
func (m *Manager) cloudClient(ctx context.Context) (aws.CloudClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cloud != nil {
		return m.cloud, nil
	}

	region := m.cfg.Region
	if region == "" {
		identity, err := m.envLocked().Identity(ctx)
		if err != nil {
			return nil, err
		}
		region = identity.Region
	}

	client, err := aws.NewEC2Client(ctx, region, m.cfg, m.Logger, aws.WithMetrics(m.metrics))
	if err != nil {
		return nil, err
	}
	m.cloud = client
	return m.cloud, nil
}

// wait runs a bounded convergence wait and records its outcome.
func (m *Manager) wait(ctx context.Context, spec poll.Spec, cond poll.Condition) error {
	timer := observability.NewTimer()
	err := poll.WaitUntil(ctx, m.Logger, spec, cond)
	m.slog.LogConvergenceWait(ctx, spec.Description, timer.Duration(), err)
	return err
}
