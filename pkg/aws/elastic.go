package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/johnlam90/aws-eni-manager/pkg/observability"
)

// AllocateAddress allocates a new elastic IP in the VPC domain.
func (c *EC2Client) AllocateAddress(ctx context.Context, tags map[string]string) (*Address, error) {
	log := c.Logger
	log.Info("Allocating elastic IP")

	var tagSpecs []types.TagSpecification
	if len(tags) > 0 {
		awsTags := make([]types.Tag, 0, len(tags))
		for k, v := range tags {
			awsTags = append(awsTags, types.Tag{
				Key:   aws.String(k),
				Value: aws.String(v),
			})
		}
		tagSpecs = append(tagSpecs, types.TagSpecification{
			ResourceType: types.ResourceTypeElasticIp,
			Tags:         awsTags,
		})
	}

	input := &ec2.AllocateAddressInput{
		Domain:            types.DomainTypeVpc,
		TagSpecifications: tagSpecs,
	}

	if err := c.gate(ctx); err != nil {
		return nil, err
	}
	timer := observability.NewTimer()
	result, err := c.EC2.AllocateAddress(ctx, input)
	c.record("ec2", "AllocateAddress", timer, err)
	if err != nil {
		return nil, wrapAPIError(err, "allocate elastic IP")
	}

	addr := &Address{
		PublicIP:     aws.ToString(result.PublicIp),
		AllocationID: aws.ToString(result.AllocationId),
	}
	log.Info("Successfully allocated elastic IP", "publicIP", addr.PublicIP, "allocationID", addr.AllocationID)
	return addr, nil
}

// ReleaseAddress releases an elastic IP by allocation id.
func (c *EC2Client) ReleaseAddress(ctx context.Context, allocationID string) error {
	log := c.Logger.WithValues("allocationID", allocationID)
	log.Info("Releasing elastic IP")

	input := &ec2.ReleaseAddressInput{
		AllocationId: aws.String(allocationID),
	}

	if err := c.gate(ctx); err != nil {
		return err
	}
	timer := observability.NewTimer()
	_, err := c.EC2.ReleaseAddress(ctx, input)
	c.record("ec2", "ReleaseAddress", timer, err)
	if err != nil {
		return wrapAPIError(err, "release elastic IP")
	}

	log.Info("Successfully released elastic IP")
	return nil
}

// AssociateAddress binds an elastic IP to an interface's private
// address and returns the association id. Reassociation is disabled so
// an address already bound elsewhere fails instead of silently moving.
func (c *EC2Client) AssociateAddress(ctx context.Context, allocationID, interfaceID, privateIP string) (string, error) {
	log := c.Logger.WithValues("allocationID", allocationID, "eniID", interfaceID, "privateIP", privateIP)
	log.Info("Associating elastic IP")

	input := &ec2.AssociateAddressInput{
		AllocationId:       aws.String(allocationID),
		NetworkInterfaceId: aws.String(interfaceID),
		PrivateIpAddress:   aws.String(privateIP),
		AllowReassociation: aws.Bool(false),
	}

	if err := c.gate(ctx); err != nil {
		return "", err
	}
	timer := observability.NewTimer()
	result, err := c.EC2.AssociateAddress(ctx, input)
	c.record("ec2", "AssociateAddress", timer, err)
	if err != nil {
		return "", wrapAPIError(err, "associate elastic IP")
	}

	associationID := aws.ToString(result.AssociationId)
	log.Info("Successfully associated elastic IP", "associationID", associationID)
	return associationID, nil
}

// DisassociateAddress unbinds an elastic IP by association id.
func (c *EC2Client) DisassociateAddress(ctx context.Context, associationID string) error {
	log := c.Logger.WithValues("associationID", associationID)
	log.Info("Disassociating elastic IP")

	input := &ec2.DisassociateAddressInput{
		AssociationId: aws.String(associationID),
	}

	if err := c.gate(ctx); err != nil {
		return err
	}
	timer := observability.NewTimer()
	_, err := c.EC2.DisassociateAddress(ctx, input)
	c.record("ec2", "DisassociateAddress", timer, err)
	if err != nil {
		return wrapAPIError(err, "disassociate elastic IP")
	}

	log.Info("Successfully disassociated elastic IP")
	return nil
}

// DescribeAddresses lists elastic IPs matching the filters. The API
// returns the full set in one response, so only throttling needs
// handling here.
func (c *EC2Client) DescribeAddresses(ctx context.Context, filters []Filter) ([]Address, error) {
	log := c.Logger.WithValues("filterCount", len(filters))
	log.V(1).Info("Listing elastic IPs")

	input := &ec2.DescribeAddressesInput{
		Filters: toEC2Filters(filters),
	}

	backoff := wait.Backoff{
		Steps:    5,
		Duration: 1 * time.Second,
		Factor:   2.0,
		Jitter:   0.1,
	}

	var result *ec2.DescribeAddressesOutput
	var lastErr error
	err := wait.ExponentialBackoff(backoff, func() (bool, error) {
		if err := c.gate(ctx); err != nil {
			return false, err
		}
		timer := observability.NewTimer()
		var err error
		result, err = c.EC2.DescribeAddresses(ctx, input)
		c.record("ec2", "DescribeAddresses", timer, err)
		if err != nil {
			if isThrottling(err) {
				log.Info("AWS API rate limit exceeded, retrying", "error", err.Error())
				lastErr = err
				return false, nil
			}

			lastErr = err
			return false, err
		}
		return true, nil
	})

	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, wrapAPIError(lastErr, "list elastic IPs")
	}

	addresses := make([]Address, 0, len(result.Addresses))
	for _, a := range result.Addresses {
		addresses = append(addresses, convertAddress(a))
	}
	return addresses, nil
}
