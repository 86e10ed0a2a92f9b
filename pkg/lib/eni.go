// Package lib provides a clean API for using the ENI manager as a
// library in other Go projects. It abstracts away the orchestration
// details and provides a simple interface for managing network
// interfaces from code running on the instance.
package lib

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/johnlam90/aws-eni-manager/pkg/config"
	"github.com/johnlam90/aws-eni-manager/pkg/lifecycle"
	"github.com/johnlam90/aws-eni-manager/pkg/metadata"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
)

// Option and result types are those of the lifecycle package; the
// aliases keep embedders on a single import.
type (
	CreateOptions     = lifecycle.CreateOptions
	CreateResult      = lifecycle.CreateResult
	AttachOptions     = lifecycle.AttachOptions
	AttachResult      = lifecycle.AttachResult
	DetachOptions     = lifecycle.DetachOptions
	DetachResult      = lifecycle.DetachResult
	CleanOptions      = lifecycle.CleanOptions
	CleanResult       = lifecycle.CleanResult
	AssignOptions     = lifecycle.AssignOptions
	AssignResult      = lifecycle.AssignResult
	UnassignOptions   = lifecycle.UnassignOptions
	UnassignResult    = lifecycle.UnassignResult
	AssociateOptions  = lifecycle.AssociateOptions
	AssociateResult   = lifecycle.AssociateResult
	DissociateOptions = lifecycle.DissociateOptions
	DissociateResult  = lifecycle.DissociateResult
	AllocateResult    = lifecycle.AllocateResult
	ReleaseOptions    = lifecycle.ReleaseOptions
	ReleaseResult     = lifecycle.ReleaseResult
)

// ENIManager provides methods for managing network interfaces, their
// secondary addresses and elastic addresses on the current instance.
type ENIManager struct {
	lifecycle *lifecycle.Manager
	config    *config.Settings
	logger    logr.Logger
}

// NewENIManager creates a new ENIManager with default settings. The
// region and instance identity are resolved from the metadata service
// on first use. Lifecycle options may inject alternative cloud or OS
// collaborators.
func NewENIManager(logger logr.Logger, opts ...lifecycle.Option) *ENIManager {
	cfg := config.Default()
	return &ENIManager{
		lifecycle: lifecycle.NewManager(cfg, logger, opts...),
		config:    cfg,
		logger:    logger,
	}
}

// NewENIManagerWithConfig creates a new ENIManager with the given
// settings.
func NewENIManagerWithConfig(cfg *config.Settings, logger logr.Logger, opts ...lifecycle.Option) (*ENIManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &ENIManager{
		lifecycle: lifecycle.NewManager(cfg, logger, opts...),
		config:    cfg,
		logger:    logger,
	}, nil
}

// Identity reports the network identity of the current instance.
func (m *ENIManager) Identity(ctx context.Context) (*metadata.NetworkIdentity, error) {
	identity, err := m.lifecycle.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instance identity: %w", err)
	}
	return identity, nil
}

// CreateENI creates a new network interface and waits until it is
// available.
func (m *ENIManager) CreateENI(ctx context.Context, options CreateOptions) (*CreateResult, error) {
	result, err := m.lifecycle.Create(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create network interface: %w", err)
	}
	return result, nil
}

// AttachENI attaches a network interface to the current instance,
// waits for the attachment, and configures the local device.
func (m *ENIManager) AttachENI(ctx context.Context, options AttachOptions) (*AttachResult, error) {
	result, err := m.lifecycle.Attach(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to attach network interface: %w", err)
	}

	m.logger.Info("Successfully attached ENI",
		"eniID", result.InterfaceID, "device", result.Name, "attachmentID", result.AttachmentID)
	return result, nil
}

// DetachENI tears down the local device, detaches the interface, and
// deletes it when this tool created it.
func (m *ENIManager) DetachENI(ctx context.Context, options DetachOptions) (*DetachResult, error) {
	result, err := m.lifecycle.Detach(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to detach network interface: %w", err)
	}
	return result, nil
}

// CleanENIs deletes leaked available interfaces in the instance's VPC.
func (m *ENIManager) CleanENIs(ctx context.Context, options CleanOptions) (*CleanResult, error) {
	result, err := m.lifecycle.Clean(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to clean network interfaces: %w", err)
	}
	return result, nil
}

// AssignAddress assigns a secondary private address to an attached
// interface and binds it to the local device.
func (m *ENIManager) AssignAddress(ctx context.Context, options AssignOptions) (*AssignResult, error) {
	result, err := m.lifecycle.Assign(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to assign address: %w", err)
	}
	return result, nil
}

// UnassignAddress removes a secondary private address from an attached
// interface and unbinds it from the local device.
func (m *ENIManager) UnassignAddress(ctx context.Context, options UnassignOptions) (*UnassignResult, error) {
	result, err := m.lifecycle.Unassign(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to unassign address: %w", err)
	}
	return result, nil
}

// AssociateAddress binds an elastic address to a private address on an
// attached interface, allocating a fresh one when none is given.
func (m *ENIManager) AssociateAddress(ctx context.Context, options AssociateOptions) (*AssociateResult, error) {
	result, err := m.lifecycle.Associate(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to associate elastic address: %w", err)
	}
	return result, nil
}

// DissociateAddress unbinds an elastic address and optionally releases
// it.
func (m *ENIManager) DissociateAddress(ctx context.Context, options DissociateOptions) (*DissociateResult, error) {
	result, err := m.lifecycle.Dissociate(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to dissociate elastic address: %w", err)
	}
	return result, nil
}

// AllocateAddress allocates a fresh elastic address.
func (m *ENIManager) AllocateAddress(ctx context.Context) (*AllocateResult, error) {
	result, err := m.lifecycle.Allocate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate elastic address: %w", err)
	}
	return result, nil
}

// ReleaseAddress releases a free elastic address.
func (m *ENIManager) ReleaseAddress(ctx context.Context, options ReleaseOptions) (*ReleaseResult, error) {
	result, err := m.lifecycle.Release(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to release elastic address: %w", err)
	}
	return result, nil
}

// TestDevice checks reachability of the subnet gateway through a local
// device.
func (m *ENIManager) TestDevice(ctx context.Context, ref netif.Ref) error {
	if err := m.lifecycle.LocalInterface().Test(ctx, ref); err != nil {
		return fmt.Errorf("failed reachability test: %w", err)
	}
	return nil
}
