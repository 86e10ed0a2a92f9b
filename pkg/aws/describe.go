package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/johnlam90/aws-eni-manager/pkg/observability"
)

// DescribeInterface describes a network interface.
// Returns nil, nil if the interface doesn't exist.
func (c *EC2Client) DescribeInterface(ctx context.Context, interfaceID string) (*NetworkInterface, error) {
	log := c.Logger.WithValues("eniID", interfaceID)
	log.V(1).Info("Describing network interface")

	input := &ec2.DescribeNetworkInterfacesInput{
		NetworkInterfaceIds: []string{interfaceID},
	}

	backoff := wait.Backoff{
		Steps:    5,
		Duration: 1 * time.Second,
		Factor:   2.0,
		Jitter:   0.1,
	}

	var result *ec2.DescribeNetworkInterfacesOutput
	var notFound bool
	var lastErr error
	err := wait.ExponentialBackoff(backoff, func() (bool, error) {
		if err := c.gate(ctx); err != nil {
			return false, err
		}
		timer := observability.NewTimer()
		var err error
		result, err = c.EC2.DescribeNetworkInterfaces(ctx, input)
		c.record("ec2", "DescribeNetworkInterfaces", timer, err)
		if err != nil {
			// Describing by explicit id fails with NotFound instead of
			// returning an empty list
			if isNotFound(err) {
				notFound = true
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
		return nil, wrapAPIError(lastErr, "describe network interface")
	}

	if notFound || len(result.NetworkInterfaces) == 0 {
		return nil, nil
	}

	return convertInterface(result.NetworkInterfaces[0]), nil
}

// DescribeInterfaces lists network interfaces matching the filters,
// following pagination until the provider reports no further pages.
func (c *EC2Client) DescribeInterfaces(ctx context.Context, filters []Filter) ([]NetworkInterface, error) {
	log := c.Logger.WithValues("filterCount", len(filters))
	log.V(1).Info("Listing network interfaces")

	var interfaces []NetworkInterface
	var nextToken string
	for {
		input := &ec2.DescribeNetworkInterfacesInput{
			Filters: toEC2Filters(filters),
		}
		if nextToken != "" {
			input.NextToken = aws.String(nextToken)
		}

		result, err := c.describePage(ctx, input)
		if err != nil {
			return nil, wrapAPIError(err, "list network interfaces")
		}

		for _, ni := range result.NetworkInterfaces {
			interfaces = append(interfaces, *convertInterface(ni))
		}

		if result.NextToken == nil || *result.NextToken == "" {
			break
		}
		nextToken = *result.NextToken
	}

	log.V(1).Info("Listed network interfaces", "count", len(interfaces))
	return interfaces, nil
}

// describePage fetches a single page of interfaces, retrying on
// throttling.
func (c *EC2Client) describePage(ctx context.Context, input *ec2.DescribeNetworkInterfacesInput) (*ec2.DescribeNetworkInterfacesOutput, error) {
	backoff := wait.Backoff{
		Steps:    5,
		Duration: 1 * time.Second,
		Factor:   2.0,
		Jitter:   0.1,
	}

	var result *ec2.DescribeNetworkInterfacesOutput
	var lastErr error
	err := wait.ExponentialBackoff(backoff, func() (bool, error) {
		if err := c.gate(ctx); err != nil {
			return false, err
		}
		timer := observability.NewTimer()
		var err error
		result, err = c.EC2.DescribeNetworkInterfaces(ctx, input)
		c.record("ec2", "DescribeNetworkInterfaces", timer, err)
		if err != nil {
			if isThrottling(err) {
				c.Logger.Info("AWS API rate limit exceeded, retrying", "error", err.Error())
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
		return nil, lastErr
	}
	return result, nil
}
