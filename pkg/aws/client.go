// Package aws wraps the AWS SDK v2 EC2 and STS clients with the
// operations the ENI manager needs: network interface lifecycle calls,
// private and elastic address management, and describe queries. Every
// call passes a shared rate limiter gate, and provider errors are
// classified into the domain error taxonomy before they leave this
// package.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"github.com/johnlam90/aws-eni-manager/pkg/config"
	"github.com/johnlam90/aws-eni-manager/pkg/observability"
)

// EC2Client wraps the AWS EC2 client with the ENI manager's operations
// using SDK v2. It implements CloudClient.
type EC2Client struct {
	// EC2 is the underlying AWS SDK v2 EC2 client
	EC2 *ec2.Client
	// STS is used only for the caller identity preflight
	STS *sts.Client
	// Logger is used for structured logging
	Logger logr.Logger

	// limiter paces all provider calls
	limiter *rate.Limiter
	// metrics is optional; when set, per-call outcomes are recorded
	metrics *observability.Metrics
}

// Option configures an EC2Client.
type Option func(*EC2Client)

// WithMetrics records API call outcomes to the given metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *EC2Client) {
		c.metrics = m
	}
}

// NewEC2Client creates a new EC2 client using AWS SDK v2. Static
// credentials from the settings take precedence over the default
// credential chain.
func NewEC2Client(ctx context.Context, region string, cfg *config.Settings, logger logr.Logger, opts ...Option) (*EC2Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %v", err)
	}

	client := &EC2Client{
		EC2:     ec2.NewFromConfig(awsCfg),
		STS:     sts.NewFromConfig(awsCfg),
		Logger:  logger.WithName("aws-ec2"),
		limiter: rate.NewLimiter(rate.Limit(cfg.APIRate), cfg.APIBurst),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// gate blocks until the rate limiter admits another provider call.
func (c *EC2Client) gate(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// record reports one provider call's outcome to the metrics.
func (c *EC2Client) record(service, operation string, timer *observability.Timer, err error) {
	if c.metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		c.metrics.RecordAWSAPIError(service, operation, observability.CategorizeError(err))
		if isThrottling(err) {
			c.metrics.RecordAWSThrottling()
		}
	}
	c.metrics.RecordAWSAPICall(service, operation, status, timer.Duration())
}

// VerifyIdentity resolves the AWS caller identity and returns its ARN.
// Run once at startup so credential problems surface before any
// mutation.
func (c *EC2Client) VerifyIdentity(ctx context.Context) (string, error) {
	c.Logger.V(1).Info("Verifying AWS caller identity")

	if err := c.gate(ctx); err != nil {
		return "", err
	}

	timer := observability.NewTimer()
	result, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	c.record("sts", "GetCallerIdentity", timer, err)
	if err != nil {
		return "", wrapAPIError(err, "verify caller identity")
	}

	arn := aws.ToString(result.Arn)
	c.Logger.Info("Verified AWS caller identity", "arn", arn)
	return arn, nil
}
