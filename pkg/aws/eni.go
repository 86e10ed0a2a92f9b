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

// CreateInterface creates a new network interface in the given subnet.
// Tags are applied atomically through tag specifications so the
// interface is never visible untagged.
func (c *EC2Client) CreateInterface(ctx context.Context, subnetID string, securityGroupIDs []string, description string, tags map[string]string) (*NetworkInterface, error) {
	log := c.Logger.WithValues("subnetID", subnetID, "securityGroups", securityGroupIDs)
	log.Info("Creating network interface")

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
			ResourceType: types.ResourceTypeNetworkInterface,
			Tags:         awsTags,
		})
	}

	input := &ec2.CreateNetworkInterfaceInput{
		Description:       aws.String(description),
		SubnetId:          aws.String(subnetID),
		Groups:            securityGroupIDs,
		TagSpecifications: tagSpecs,
	}

	if err := c.gate(ctx); err != nil {
		return nil, err
	}
	timer := observability.NewTimer()
	result, err := c.EC2.CreateNetworkInterface(ctx, input)
	c.record("ec2", "CreateNetworkInterface", timer, err)
	if err != nil {
		return nil, wrapAPIError(err, "create network interface")
	}

	eni := convertInterface(*result.NetworkInterface)
	log.Info("Successfully created network interface", "eniID", eni.InterfaceID)
	return eni, nil
}

// AttachInterface attaches a network interface to an EC2 instance at
// the given device index and returns the attachment id.
func (c *EC2Client) AttachInterface(ctx context.Context, interfaceID, instanceID string, deviceIndex int) (string, error) {
	log := c.Logger.WithValues("eniID", interfaceID, "instanceID", instanceID, "deviceIndex", deviceIndex)
	log.Info("Attaching network interface to instance")

	input := &ec2.AttachNetworkInterfaceInput{
		DeviceIndex:        aws.Int32(int32(deviceIndex)),
		InstanceId:         aws.String(instanceID),
		NetworkInterfaceId: aws.String(interfaceID),
	}

	if err := c.gate(ctx); err != nil {
		return "", err
	}
	timer := observability.NewTimer()
	result, err := c.EC2.AttachNetworkInterface(ctx, input)
	c.record("ec2", "AttachNetworkInterface", timer, err)
	if err != nil {
		return "", wrapAPIError(err, "attach network interface")
	}

	attachmentID := aws.ToString(result.AttachmentId)
	log.Info("Successfully attached network interface", "attachmentID", attachmentID)
	return attachmentID, nil
}

// DetachInterface detaches a network interface by attachment id. A
// missing attachment counts as success since the goal state is already
// reached. Throttling errors are retried with exponential backoff.
func (c *EC2Client) DetachInterface(ctx context.Context, attachmentID string, force bool) error {
	log := c.Logger.WithValues("attachmentID", attachmentID, "force", force)
	log.Info("Detaching network interface")

	input := &ec2.DetachNetworkInterfaceInput{
		AttachmentId: aws.String(attachmentID),
		Force:        aws.Bool(force),
	}

	backoff := wait.Backoff{
		Steps:    5,
		Duration: 1 * time.Second,
		Factor:   2.0,
		Jitter:   0.1,
	}

	var lastErr error
	err := wait.ExponentialBackoff(backoff, func() (bool, error) {
		if err := c.gate(ctx); err != nil {
			return false, err
		}
		timer := observability.NewTimer()
		_, err := c.EC2.DetachNetworkInterface(ctx, input)
		c.record("ec2", "DetachNetworkInterface", timer, err)
		if err != nil {
			// The attachment can vanish if the ENI was detached outside
			// of our control
			if errorCode(err) == "InvalidAttachmentID.NotFound" {
				log.Info("Attachment no longer exists, considering detachment successful", "error", err.Error())
				return true, nil
			}

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
		return wrapAPIError(lastErr, "detach network interface")
	}

	log.Info("Successfully detached network interface")
	return nil
}

// DeleteInterface deletes a network interface. A missing interface
// counts as success. Throttling errors are retried with exponential
// backoff, which matters here because deletion usually follows right
// after a detach wait loop.
func (c *EC2Client) DeleteInterface(ctx context.Context, interfaceID string) error {
	log := c.Logger.WithValues("eniID", interfaceID)
	log.Info("Deleting network interface")

	input := &ec2.DeleteNetworkInterfaceInput{
		NetworkInterfaceId: aws.String(interfaceID),
	}

	backoff := wait.Backoff{
		Steps:    5,
		Duration: 1 * time.Second,
		Factor:   2.0,
		Jitter:   0.1,
	}

	var lastErr error
	err := wait.ExponentialBackoff(backoff, func() (bool, error) {
		if err := c.gate(ctx); err != nil {
			return false, err
		}
		timer := observability.NewTimer()
		_, err := c.EC2.DeleteNetworkInterface(ctx, input)
		c.record("ec2", "DeleteNetworkInterface", timer, err)
		if err != nil {
			if errorCode(err) == "InvalidNetworkInterfaceID.NotFound" {
				log.Info("Network interface no longer exists, considering deletion successful", "error", err.Error())
				return true, nil
			}

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
		return wrapAPIError(lastErr, "delete network interface")
	}

	log.Info("Successfully deleted network interface")
	return nil
}

// CreateTags applies tags to an existing resource.
func (c *EC2Client) CreateTags(ctx context.Context, resourceID string, tags map[string]string) error {
	log := c.Logger.WithValues("resourceID", resourceID)
	log.V(1).Info("Tagging resource", "tags", tags)

	awsTags := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		awsTags = append(awsTags, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(v),
		})
	}

	input := &ec2.CreateTagsInput{
		Resources: []string{resourceID},
		Tags:      awsTags,
	}

	if err := c.gate(ctx); err != nil {
		return err
	}
	timer := observability.NewTimer()
	_, err := c.EC2.CreateTags(ctx, input)
	c.record("ec2", "CreateTags", timer, err)
	if err != nil {
		return wrapAPIError(err, "tag resource")
	}
	return nil
}
