package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
	"github.com/johnlam90/aws-eni-manager/pkg/observability"
	"github.com/johnlam90/aws-eni-manager/pkg/poll"
)

// detachPollInterval is slower than the default probe cadence;
// detachments propagate in seconds, not milliseconds.
const detachPollInterval = 300 * time.Millisecond

// Detach tears down the local configuration of an attached interface,
// detaches it from this instance, and deletes it when it carries our
// ownership tag or the caller asks for deletion explicitly.
func (m *Manager) Detach(ctx context.Context, opts DetachOptions) (*DetachResult, error) {
	opCtx := observability.NewOperationContext("detach")
	m.slog.LogOperationStart(ctx, opCtx, "Detaching network interface")

	ref := deviceRef(opts.InterfaceID, opts.Name, opts.DeviceNumber)
	if ref.Empty() {
		err := errors.New(errors.KindInvalidParameter, "no device selector given", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid detach options")
		return nil, err
	}

	local := m.localInterface()
	dev, err := local.Resolve(ctx, ref)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve local device")
		return nil, err
	}
	if err := crossCheckDevice(dev, opts.InterfaceID, opts.Name, opts.DeviceNumber); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Detach options contradict the resolved device")
		return nil, err
	}
	opCtx.WithInterface(dev.InterfaceID).WithDevice(dev.Name, dev.DeviceNumber)

	identity, err := m.identity(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve instance identity")
		return nil, err
	}
	opCtx.WithInstance(identity.InstanceID)

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
	if described == nil || described.Attachment == nil ||
		described.Attachment.InstanceID != identity.InstanceID {
		err := errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("interface %s is not attached to instance %s", dev.InterfaceID, identity.InstanceID), nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "No live attachment to detach")
		return nil, err
	}
	attachment := described.Attachment

	// Local teardown comes first so no traffic is routed over a device
	// the provider is about to pull.
	resolved := netif.ByID(dev.InterfaceID)
	if err := local.Disable(ctx, resolved); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to bring down the device")
		return nil, err
	}
	if err := local.Deconfigure(ctx, resolved); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to remove routing for the device")
		return nil, err
	}

	if err := cloud.DetachInterface(ctx, attachment.AttachmentID, true); err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to detach network interface")
		return nil, err
	}

	shouldDelete := m.policy().OwnedByUs(described.Tags)
	if opts.Delete != nil {
		shouldDelete = *opts.Delete
	}

	final := described
	deleted := false
	if shouldDelete || opts.Block {
		err = m.wait(ctx, poll.Spec{
			Description: fmt.Sprintf("detachment of %s", dev.InterfaceID),
			Timeout:     m.cfg.Timeout,
			Interval:    detachPollInterval,
			Tolerate:    []errors.Kind{errors.KindConnectionFailed},
		}, func(ctx context.Context) (bool, error) {
			present, err := local.Exists(ctx, resolved)
			if err != nil {
				return false, err
			}
			if present {
				return false, nil
			}
			current, err := cloud.DescribeInterface(ctx, dev.InterfaceID)
			if err != nil {
				return false, err
			}
			if current == nil {
				// Deleted out from under us; the detachment goal is
				// reached either way.
				final = nil
				return true, nil
			}
			final = current
			return current.Status == aws.InterfaceStatusAvailable, nil
		})
		if err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Detachment did not converge")
			return nil, err
		}

		if shouldDelete {
			if err := cloud.DeleteInterface(ctx, dev.InterfaceID); err != nil {
				m.slog.LogOperationError(ctx, opCtx, err, "Failed to delete network interface")
				return nil, err
			}
			deleted = true
		}
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Detached network interface")
	return &DetachResult{
		InterfaceID:  dev.InterfaceID,
		DeviceNumber: dev.DeviceNumber,
		Name:         dev.Name,
		Deleted:      deleted,
		Interface:    final,
	}, nil
}
