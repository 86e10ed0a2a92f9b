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

// Attach attaches an interface to this instance, waits until the
// provider reports it in use and the local device exists, then
// configures routing and brings the link up unless suppressed.
func (m *Manager) Attach(ctx context.Context, opts AttachOptions) (*AttachResult, error) {
	opCtx := observability.NewOperationContext("attach").WithInterface(opts.InterfaceID)
	m.slog.LogOperationStart(ctx, opCtx, "Attaching network interface")

	if opts.InterfaceID == "" {
		err := errors.New(errors.KindInvalidParameter, "an interface id is required", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid attach options")
		return nil, err
	}

	local := m.localInterface()
	if (!opts.NoConfigure || !opts.NoEnable) && !local.HasPrivilege() {
		err := errors.New(errors.KindPermission,
			"configuring the attached interface requires root privileges", nil, nil)
		m.slog.LogOperationError(ctx, opCtx, err, "Insufficient privileges")
		return nil, err
	}

	identity, err := m.identity(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve instance identity")
		return nil, err
	}
	opCtx.WithInstance(identity.InstanceID)

	deviceNumber, err := m.resolveAttachSlot(ctx, local, opts)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve attachment slot")
		return nil, err
	}
	opCtx.WithMetadata("deviceNumber", deviceNumber)

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	attachmentID, err := cloud.AttachInterface(ctx, opts.InterfaceID, identity.InstanceID, deviceNumber)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to attach network interface")
		return nil, err
	}

	// The local existence probe rides the metadata path, so transient
	// metadata failures count as "not yet".
	ref := netif.ByID(opts.InterfaceID)
	var current *aws.NetworkInterface
	err = m.wait(ctx, poll.Spec{
		Description: fmt.Sprintf("attachment of %s at device %d", opts.InterfaceID, deviceNumber),
		Timeout:     m.cfg.Timeout,
		Interval:    m.cfg.PollInterval,
		Tolerate:    []errors.Kind{errors.KindConnectionFailed},
	}, func(ctx context.Context) (bool, error) {
		present, err := local.Exists(ctx, ref)
		if err != nil {
			return false, err
		}
		if !present {
			return false, nil
		}
		described, err := cloud.DescribeInterface(ctx, opts.InterfaceID)
		if err != nil {
			return false, err
		}
		if described == nil {
			return false, nil
		}
		current = described
		return described.Status == aws.InterfaceStatusInUse, nil
	})
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Attachment did not converge")
		return nil, err
	}

	dev, err := local.Resolve(ctx, ref)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve the attached device")
		return nil, err
	}
	opCtx.WithDevice(dev.Name, dev.DeviceNumber)

	if !opts.NoConfigure {
		if err := local.Configure(ctx, ref); err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to configure routing for the attached device")
			return nil, err
		}
	}
	if !opts.NoEnable {
		if err := local.Enable(ctx, ref); err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to bring up the attached device")
			return nil, err
		}
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Attached network interface")
	return &AttachResult{
		InterfaceID:  opts.InterfaceID,
		AttachmentID: attachmentID,
		DeviceNumber: dev.DeviceNumber,
		Name:         dev.Name,
		Interface:    current,
	}, nil
}

// resolveAttachSlot picks the attachment slot: an explicit device
// number or name (cross-checked against each other, and refused when
// occupied), otherwise the first free slot.
func (m *Manager) resolveAttachSlot(ctx context.Context, local netif.LocalInterface, opts AttachOptions) (int, error) {
	if opts.Name == "" && opts.DeviceNumber <= 0 {
		return local.FreeDeviceNumber(ctx)
	}

	deviceNumber := opts.DeviceNumber
	if opts.Name != "" {
		fromName, err := netif.DeviceNumberForName(opts.Name)
		if err != nil {
			return 0, errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("cannot infer an attachment slot from name %s", opts.Name), nil, err)
		}
		if opts.DeviceNumber > 0 && fromName != opts.DeviceNumber {
			return 0, errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("name %s implies device %d, which contradicts device number %d",
					opts.Name, fromName, opts.DeviceNumber), nil, nil)
		}
		deviceNumber = fromName
	}

	occupied, err := local.Exists(ctx, netif.ByDeviceNumber(deviceNumber))
	if err != nil {
		return 0, err
	}
	if occupied {
		return 0, errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("device slot %d is already occupied", deviceNumber), nil, nil)
	}
	return deviceNumber, nil
}
