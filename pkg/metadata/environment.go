package metadata

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// HardwareAddrSource supplies the hardware address of the instance's
// primary network interface.
type HardwareAddrSource interface {
	PrimaryHardwareAddr(ctx context.Context) (string, error)
}

// Environment is the lazily-initialized, immutable-after-construction
// snapshot of the instance's network identity. The snapshot is computed
// on first use and cached for the process lifetime; a failed attempt is
// not cached, so a later call retries from scratch.
type Environment struct {
	client *Client
	hw     HardwareAddrSource

	// Logger is used for structured logging.
	Logger logr.Logger

	mu       sync.Mutex
	identity *NetworkIdentity
}

// NewEnvironment creates an environment context over the given metadata
// client and hardware address source.
func NewEnvironment(client *Client, hw HardwareAddrSource, logger logr.Logger) *Environment {
	return &Environment{
		client: client,
		hw:     hw,
		Logger: logger.WithName("environment"),
	}
}

// Identity returns the cached network identity, resolving it on first
// use. Callers must treat the returned value as read-only.
func (e *Environment) Identity(ctx context.Context) (*NetworkIdentity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.identity != nil {
		return e.identity, nil
	}

	mac, err := e.hw.PrimaryHardwareAddr(ctx)
	if err != nil {
		return nil, errors.New(errors.KindEnvironment,
			"could not determine primary interface hardware address", nil, err)
	}

	identity, err := e.client.ResolveIdentity(ctx, mac)
	if err != nil {
		if errors.Is(err, errors.KindEnvironment) {
			return nil, err
		}
		return nil, errors.New(errors.KindEnvironment,
			"could not establish instance network identity", nil, err)
	}

	e.identity = identity
	e.Logger.V(1).Info("Cached instance network identity", "instanceID", identity.InstanceID)
	return e.identity, nil
}
