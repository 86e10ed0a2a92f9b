package lifecycle

import (
	"context"
	"fmt"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
	"github.com/johnlam90/aws-eni-manager/pkg/observability"
	"github.com/johnlam90/aws-eni-manager/pkg/poll"
)

// Assign adds a secondary private address to an attached interface,
// waits for it to appear in the interface's address set, and binds it
// to the local link unless suppressed.
func (m *Manager) Assign(ctx context.Context, opts AssignOptions) (*AssignResult, error) {
	opCtx := observability.NewOperationContext("assign")
	m.slog.LogOperationStart(ctx, opCtx, "Assigning secondary private address")

	ref := deviceRef(opts.InterfaceID, opts.Name, opts.DeviceNumber)
	if ref.Empty() {
		err := errors.New(errors.KindInvalidParameter, "no device selector given", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid assign options")
		return nil, err
	}

	local := m.localInterface()
	dev, err := local.Resolve(ctx, ref)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve local device")
		return nil, err
	}
	if err := crossCheckDevice(dev, opts.InterfaceID, opts.Name, opts.DeviceNumber); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Assign options contradict the resolved device")
		return nil, err
	}
	opCtx.WithInterface(dev.InterfaceID).WithDevice(dev.Name, dev.DeviceNumber)

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	var addresses []string
	count := 0
	if opts.Address != "" {
		described, err := cloud.DescribeInterface(ctx, dev.InterfaceID)
		if err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to describe network interface")
			return nil, err
		}
		if described == nil {
			err := errors.New(errors.KindUnknownInterface,
				fmt.Sprintf("interface %s does not exist", dev.InterfaceID), nil, nil)
			m.slog.LogOperationError(ctx, opCtx, err, "Interface vanished")
			return nil, err
		}
		if described.HasIP(opts.Address) {
			err := errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("address %s is already assigned to interface %s", opts.Address, dev.InterfaceID), nil, nil)
			m.slog.LogOperationError(ctx, opCtx, err, "Duplicate address")
			return nil, err
		}
		addresses = []string{opts.Address}
	} else {
		count = 1
	}

	assigned, err := cloud.AssignPrivateAddresses(ctx, dev.InterfaceID, addresses, count)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to assign private address")
		return nil, err
	}
	if len(assigned) == 0 {
		err := errors.New(errors.KindServiceError,
			fmt.Sprintf("provider reported no assigned address on %s", dev.InterfaceID), nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Empty assignment response")
		return nil, err
	}
	address := assigned[0]
	opCtx.WithAddress(address)

	var current *aws.NetworkInterface
	err = m.wait(ctx, poll.Spec{
		Description: fmt.Sprintf("assignment of %s", address),
		Timeout:     m.cfg.Timeout,
		Interval:    m.cfg.PollInterval,
		Tolerate:    []errors.Kind{errors.KindServiceError},
	}, func(ctx context.Context) (bool, error) {
		described, err := cloud.DescribeInterface(ctx, dev.InterfaceID)
		if err != nil {
			return false, err
		}
		if described == nil {
			return false, nil
		}
		current = described
		return described.HasIP(address), nil
	})
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Assignment did not converge")
		return nil, err
	}

	if !opts.NoConfigure {
		if err := local.AddAlias(ctx, netif.ByID(dev.InterfaceID), address); err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to bind the address locally")
			return nil, err
		}
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Assigned secondary private address")
	return &AssignResult{
		Address:      address,
		InterfaceID:  dev.InterfaceID,
		DeviceNumber: dev.DeviceNumber,
		Name:         dev.Name,
		Interface:    current,
	}, nil
}

// Unassign removes a secondary private address from an attached
// interface, unbinding it from the local link first. The primary
// address is refused before any cloud call.
func (m *Manager) Unassign(ctx context.Context, opts UnassignOptions) (*UnassignResult, error) {
	opCtx := observability.NewOperationContext("unassign").WithAddress(opts.Address)
	m.slog.LogOperationStart(ctx, opCtx, "Unassigning secondary private address")

	if opts.Address == "" {
		err := errors.New(errors.KindInvalidParameter, "an address to unassign is required", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid unassign options")
		return nil, err
	}

	ref := deviceRef(opts.InterfaceID, opts.Name, opts.DeviceNumber)
	if ref.Empty() {
		err := errors.New(errors.KindInvalidParameter, "no device selector given", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid unassign options")
		return nil, err
	}

	local := m.localInterface()
	dev, err := local.Resolve(ctx, ref)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve local device")
		return nil, err
	}
	if err := crossCheckDevice(dev, opts.InterfaceID, opts.Name, opts.DeviceNumber); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Unassign options contradict the resolved device")
		return nil, err
	}
	opCtx.WithInterface(dev.InterfaceID).WithDevice(dev.Name, dev.DeviceNumber)

	// The device's first address is its primary; this check needs no
	// cloud call.
	if len(dev.Addresses) > 0 && dev.Addresses[0] == opts.Address {
		err := errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("%s is the primary address of %s and cannot be unassigned", opts.Address, dev.InterfaceID), nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Refusing to unassign the primary address")
		return nil, err
	}

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	described, err := cloud.DescribeInterface(ctx, dev.InterfaceID)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to describe network interface")
		return nil, err
	}
	if described == nil {
		err := errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("interface %s does not exist", dev.InterfaceID), nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Interface vanished")
		return nil, err
	}
	assigned := false
	for _, ip := range described.PrivateIPs {
		if ip.Address != opts.Address {
			continue
		}
		if ip.Primary {
			err := errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("%s is the primary address of %s and cannot be unassigned", opts.Address, dev.InterfaceID), nil, nil)
			m.slog.LogOperationError(ctx, opCtx, err, "Refusing to unassign the primary address")
			return nil, err
		}
		assigned = true
	}
	if !assigned {
		err := errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("address %s is not assigned to interface %s", opts.Address, dev.InterfaceID), nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Address not assigned")
		return nil, err
	}

	// Unbind locally first so nothing holds the address while the
	// provider withdraws it.
	if err := local.RemoveAlias(ctx, netif.ByID(dev.InterfaceID), opts.Address); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to unbind the address locally")
		return nil, err
	}

	if err := cloud.UnassignPrivateAddresses(ctx, dev.InterfaceID, []string{opts.Address}); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to unassign private address")
		return nil, err
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Unassigned secondary private address")
	return &UnassignResult{
		Address:      opts.Address,
		InterfaceID:  dev.InterfaceID,
		DeviceNumber: dev.DeviceNumber,
		Name:         dev.Name,
	}, nil
}
