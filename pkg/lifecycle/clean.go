package lifecycle

import (
	"context"
	"time"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/observability"
)

// Clean deletes available interfaces in the current VPC. Safe mode,
// the default, restricts the sweep to interfaces carrying our
// ownership tag and skips anything created within the grace window.
func (m *Manager) Clean(ctx context.Context, opts CleanOptions) (*CleanResult, error) {
	opCtx := observability.NewOperationContext("clean")
	m.slog.LogOperationStart(ctx, opCtx, "Cleaning up network interfaces")

	identity, err := m.identity(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to resolve instance identity")
		return nil, err
	}

	filter, err := parseCleanFilter(opts.Filter, identity.Region)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Invalid cleanup filter")
		return nil, err
	}

	filters := []aws.Filter{
		{Name: "status", Values: []string{string(aws.InterfaceStatusAvailable)}},
		{Name: "vpc-id", Values: []string{identity.VpcID}},
	}
	if !opts.Unsafe {
		filters = append(filters, aws.Filter{
			Name:   "tag:" + TagCreatedBy,
			Values: []string{m.cfg.OwnerTag},
		})
	}
	if filter != nil {
		filters = append(filters, filter.toFilter())
	}

	cloud, err := m.cloudClient(ctx)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to build cloud client")
		return nil, err
	}

	interfaces, err := cloud.DescribeInterfaces(ctx, filters)
	if err != nil {
		m.slog.LogOperationError(ctx, opCtx, err, "Failed to list candidate interfaces")
		return nil, err
	}
	opCtx.WithMetadata("candidates", len(interfaces))

	policy := m.policy()
	now := time.Now()
	result := &CleanResult{}
	for i := range interfaces {
		eni := &interfaces[i]

		if !opts.Unsafe {
			if createdOn, ok := eni.Tag(TagCreatedOn); ok {
				if _, perr := time.Parse(time.RFC3339, createdOn); perr != nil {
					m.Logger.Info("Treating malformed created-on tag as expired",
						"eniID", eni.InterfaceID, "created-on", createdOn)
				}
			}
			if policy.WithinGrace(eni.Tags, now) {
				m.slog.LogProtectedInterface(ctx, eni.InterfaceID, "created recently")
				result.Skipped = append(result.Skipped, eni.InterfaceID)
				continue
			}
		}

		if err := cloud.DeleteInterface(ctx, eni.InterfaceID); err != nil {
			// One stuck interface must not abort the sweep.
			m.Logger.Error(err, "Failed to delete interface during cleanup", "eniID", eni.InterfaceID)
			result.Skipped = append(result.Skipped, eni.InterfaceID)
			continue
		}
		m.slog.LogCleanedInterface(ctx, eni.InterfaceID)
		result.Deleted = append(result.Deleted, eni.InterfaceID)
	}

	m.slog.LogOperationSuccess(ctx, opCtx, "Cleanup finished")
	return result, nil
}
