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
	"github.com/johnlam90/aws-eni-manager/pkg/util"
)

// Create creates a network interface, waits for it to become
// available, and stamps it with ownership tags. The target subnet
// defaults to the subnet of the instance's primary interface.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*CreateResult, error) {
	opCtx := observability.NewOperationContext("create")
	m.slog.LogOperationStart(ctx, opCtx, "Creating network interface")

	identity, err := m.identity(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve instance identity")
		return nil, err
	}
	opCtx.WithInstance(identity.InstanceID)

	subnetID := opts.SubnetID
	if subnetID == "" {
		primary, err := m.localInterface().Resolve(ctx, netif.ByDeviceNumber(0))
		if err != nil {
			m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve the primary interface's subnet")
			return nil, err
		}
		subnetID = primary.SubnetID
	}
	opCtx.WithMetadata("subnetID", subnetID)

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	eni, err := cloud.CreateInterface(ctx, subnetID, opts.SecurityGroupIDs, opts.Description, opts.Tags)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to create network interface")
		return nil, err
	}
	opCtx.WithInterface(eni.InterfaceID)

	var current *aws.NetworkInterface
	err = m.wait(ctx, poll.Spec{
		Description: fmt.Sprintf("interface %s to become available", eni.InterfaceID),
		Timeout:     m.cfg.Timeout,
		Interval:    m.cfg.PollInterval,
		Tolerate:    []errors.Kind{errors.KindServiceError},
	}, func(ctx context.Context) (bool, error) {
		described, err := cloud.DescribeInterface(ctx, eni.InterfaceID)
		if err != nil {
			return false, err
		}
		if described == nil {
			// Not visible on the read path yet.
			return false, nil
		}
		current = described
		return described.Status == aws.InterfaceStatusAvailable, nil
	})
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Interface did not become available")
		return nil, err
	}

	// The interface exists and is usable at this point; a tagging
	// failure must not destroy it. One retry, then accept the
	// untagged interface with a warning.
	tags := m.ownershipTags(identity.InstanceID, time.Now())
	tagErr := cloud.CreateTags(ctx, eni.InterfaceID, tags)
	if tagErr != nil {
		tagErr = cloud.CreateTags(ctx, eni.InterfaceID, tags)
	}
	if tagErr != nil {
		m.slog.LogOperationWarning(ctx, opCtx,
			fmt.Sprintf("could not apply ownership tags, interface %s is left untagged: %v", eni.InterfaceID, tagErr))
	} else {
		current.Tags = util.MergeMaps(current.Tags, tags)
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Created network interface")
	return &CreateResult{
		InterfaceID: eni.InterfaceID,
		SubnetID:    eni.SubnetID,
		Interface:   current,
	}, nil
}
