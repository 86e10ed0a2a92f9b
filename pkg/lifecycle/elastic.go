package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
	"github.com/johnlam90/aws-eni-manager/pkg/observability"
)

// Associate binds an elastic address to a private address on an
// attached interface. The device defaults to the primary interface,
// the private address to the device's primary, and the elastic address
// to a fresh allocation. Association is synchronous on the provider
// side; nothing changes locally because the public address is NATed by
// the provider.
func (m *Manager) Associate(ctx context.Context, opts AssociateOptions) (*AssociateResult, error) {
	opCtx := observability.NewOperationContext("associate")
	m.slog.LogOperationStart(ctx, opCtx, "Associating elastic address")

	ref := deviceRef(opts.InterfaceID, opts.Name, opts.DeviceNumber)
	if ref.Empty() {
		ref = netif.ByDeviceNumber(0)
	}

	local := m.localInterface()
	dev, err := local.Resolve(ctx, ref)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve local device")
		return nil, err
	}
	if err := crossCheckDevice(dev, opts.InterfaceID, opts.Name, opts.DeviceNumber); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Associate options contradict the resolved device")
		return nil, err
	}
	opCtx.WithInterface(dev.InterfaceID).WithDevice(dev.Name, dev.DeviceNumber)

	privateIP := opts.PrivateIP
	if privateIP == "" {
		if len(dev.Addresses) == 0 {
			err := errors.New(errors.KindEnvironment,
				fmt.Sprintf("device %s has no private address to associate with", dev.Name), nil, nil)
			m.slog.LogOperationError(ctx, opCtx, err, "No private address")
			return nil, err
		}
		privateIP = dev.Addresses[0]
	}
	opCtx.WithAddress(privateIP)

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	var addr *aws.Address
	newAllocation := false
	if opts.Address == "" {
		addr, err = cloud.AllocateAddress(ctx, m.allocationTags(time.Now()))
		if err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to allocate elastic address")
			return nil, err
		}
		newAllocation = true
	} else {
		addr, err = m.lookupAddress(ctx, cloud, opts.Address)
		if err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to look up elastic address")
			return nil, err
		}
	}
	opCtx.WithMetadata("allocationID", addr.AllocationID)

	associationID, err := cloud.AssociateAddress(ctx, addr.AllocationID, dev.InterfaceID, privateIP)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to associate elastic address")
		return nil, err
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Associated elastic address")
	return &AssociateResult{
		PublicIP:      addr.PublicIP,
		AllocationID:  addr.AllocationID,
		AssociationID: associationID,
		PrivateIP:     privateIP,
		InterfaceID:   dev.InterfaceID,
		DeviceNumber:  dev.DeviceNumber,
		Name:          dev.Name,
		NewAllocation: newAllocation,
	}, nil
}

// Dissociate unbinds an elastic address and optionally releases it.
func (m *Manager) Dissociate(ctx context.Context, opts DissociateOptions) (*DissociateResult, error) {
	opCtx := observability.NewOperationContext("dissociate").WithAddress(opts.Address)
	m.slog.LogOperationStart(ctx, opCtx, "Dissociating elastic address")

	if opts.Address == "" {
		err := errors.New(errors.KindInvalidParameter, "an elastic address is required", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid dissociate options")
		return nil, err
	}

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	addr, err := m.lookupAddress(ctx, cloud, opts.Address)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to look up elastic address")
		return nil, err
	}
	if !addr.Associated() {
		err := errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("elastic address %s is not associated", opts.Address), nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Address not associated")
		return nil, err
	}

	if opts.InterfaceID != "" || opts.Name != "" || opts.DeviceNumber > 0 {
		dev, err := m.localInterface().Resolve(ctx, deviceRef(opts.InterfaceID, opts.Name, opts.DeviceNumber))
		if err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve local device")
			return nil, err
		}
		if err := crossCheckDevice(dev, opts.InterfaceID, opts.Name, opts.DeviceNumber); err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Dissociate options contradict the resolved device")
			return nil, err
		}
		if addr.NetworkInterfaceID != dev.InterfaceID {
			err := errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("elastic address %s is associated with %s, not with %s",
					opts.Address, addr.NetworkInterfaceID, dev.InterfaceID), nil, nil)
			m.slog.LogOperationError(ctx, opCtx, err, "Association does not match device")
			return nil, err
		}
	}

	if err := cloud.DisassociateAddress(ctx, addr.AssociationID); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to dissociate elastic address")
		return nil, err
	}

	released := false
	if opts.Release {
		if err := cloud.ReleaseAddress(ctx, addr.AllocationID); err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to release elastic address")
			return nil, err
		}
		released = true
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Dissociated elastic address")
	return &DissociateResult{
		PublicIP:      addr.PublicIP,
		AllocationID:  addr.AllocationID,
		AssociationID: addr.AssociationID,
		Released:      released,
	}, nil
}

// Allocate allocates a fresh elastic address in the VPC domain.
func (m *Manager) Allocate(ctx context.Context) (*AllocateResult, error) {
	opCtx := observability.NewOperationContext("allocate")
	m.slog.LogOperationStart(ctx, opCtx, "Allocating elastic address")

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	addr, err := cloud.AllocateAddress(ctx, m.allocationTags(time.Now()))
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to allocate elastic address")
		return nil, err
	}
	opCtx.WithMetadata("allocationID", addr.AllocationID)

	m.slog.LogOperationSuccess(ctx, opCtx, "Allocated elastic address")
	return &AllocateResult{
		PublicIP:     addr.PublicIP,
		AllocationID: addr.AllocationID,
	}, nil
}

// Release releases a free elastic address. An address that is still
// associated is refused; dissociate it first.
func (m *Manager) Release(ctx context.Context, opts ReleaseOptions) (*ReleaseResult, error) {
	opCtx := observability.NewOperationContext("release").WithAddress(opts.Address)
	m.slog.LogOperationStart(ctx, opCtx, "Releasing elastic address")

	if opts.Address == "" {
		err := errors.New(errors.KindInvalidParameter, "an elastic address is required", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid release options")
		return nil, err
	}

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	addr, err := m.lookupAddress(ctx, cloud, opts.Address)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to look up elastic address")
		return nil, err
	}
	if addr.Associated() {
		err := errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("elastic address %s is still associated; dissociate it first", opts.Address), nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Address still associated")
		return nil, err
	}

	if err := cloud.ReleaseAddress(ctx, addr.AllocationID); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to release elastic address")
		return nil, err
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Released elastic address")
	return &ReleaseResult{
		PublicIP:     addr.PublicIP,
		AllocationID: addr.AllocationID,
	}, nil
}
