package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/johnlam90/aws-eni-manager/pkg/observability"
)

// AssignPrivateAddresses assigns secondary private addresses to an
// interface: the explicit addresses when given, otherwise count
// provider-picked ones. Returns the addresses that were assigned.
func (c *EC2Client) AssignPrivateAddresses(ctx context.Context, interfaceID string, addresses []string, count int) ([]string, error) {
	log := c.Logger.WithValues("eniID", interfaceID)
	log.Info("Assigning private addresses", "addresses", addresses, "count", count)

	input := &ec2.AssignPrivateIpAddressesInput{
		NetworkInterfaceId: aws.String(interfaceID),
	}
	if len(addresses) > 0 {
		input.PrivateIpAddresses = addresses
	} else {
		input.SecondaryPrivateIpAddressCount = aws.Int32(int32(count))
	}

	if err := c.gate(ctx); err != nil {
		return nil, err
	}
	timer := observability.NewTimer()
	result, err := c.EC2.AssignPrivateIpAddresses(ctx, input)
	c.record("ec2", "AssignPrivateIpAddresses", timer, err)
	if err != nil {
		return nil, wrapAPIError(err, "assign private addresses")
	}

	assigned := make([]string, 0, len(result.AssignedPrivateIpAddresses))
	for _, a := range result.AssignedPrivateIpAddresses {
		assigned = append(assigned, aws.ToString(a.PrivateIpAddress))
	}
	// Older API surfaces omit the assigned list for explicit addresses
	if len(assigned) == 0 {
		assigned = addresses
	}

	log.Info("Successfully assigned private addresses", "assigned", assigned)
	return assigned, nil
}

// UnassignPrivateAddresses removes secondary private addresses from an
// interface.
func (c *EC2Client) UnassignPrivateAddresses(ctx context.Context, interfaceID string, addresses []string) error {
	log := c.Logger.WithValues("eniID", interfaceID)
	log.Info("Unassigning private addresses", "addresses", addresses)

	input := &ec2.UnassignPrivateIpAddressesInput{
		NetworkInterfaceId: aws.String(interfaceID),
		PrivateIpAddresses: addresses,
	}

	if err := c.gate(ctx); err != nil {
		return err
	}
	timer := observability.NewTimer()
	_, err := c.EC2.UnassignPrivateIpAddresses(ctx, input)
	c.record("ec2", "UnassignPrivateIpAddresses", timer, err)
	if err != nil {
		return wrapAPIError(err, "unassign private addresses")
	}

	log.Info("Successfully unassigned private addresses")
	return nil
}
