// Package test provides shared helpers for tests that run against real
// AWS infrastructure.
package test

import (
	"context"
	"os"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"

	awsutil "github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/config"
)

// SkipIfNoAWSCredentials skips the test if AWS credentials are not available
func SkipIfNoAWSCredentials(t *testing.T) {
	t.Helper()

	// Check for AWS credentials
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		// Also check for AWS_PROFILE as an alternative
		if os.Getenv("AWS_PROFILE") == "" {
			t.Skip("Skipping test that requires AWS credentials - neither AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY nor AWS_PROFILE are set")
		}
	}

	// Check for AWS region
	if Region() == "" {
		t.Skip("Skipping test that requires AWS region - neither AWS_REGION nor AWS_DEFAULT_REGION are set")
	}
}

// Region returns the AWS region for tests, preferring AWS_REGION over
// AWS_DEFAULT_REGION. Empty when neither is set.
func Region() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	return os.Getenv("AWS_DEFAULT_REGION")
}

// SubnetID returns the subnet for tests that create interfaces, or
// skips the test when TEST_SUBNET_ID is not set.
func SubnetID(t *testing.T) string {
	t.Helper()

	subnetID := os.Getenv("TEST_SUBNET_ID")
	if subnetID == "" {
		t.Skip("Skipping test that requires TEST_SUBNET_ID environment variable")
	}
	return subnetID
}

// SecurityGroupIDs returns TEST_SECURITY_GROUP_ID as a slice, or nil
// when unset. Creation falls back to the subnet's default group, so
// the variable is optional.
func SecurityGroupIDs() []string {
	if sg := os.Getenv("TEST_SECURITY_GROUP_ID"); sg != "" {
		return []string{sg}
	}
	return nil
}

// CreateTestLogger creates a logger for testing
func CreateTestLogger(t *testing.T) logr.Logger {
	return testr.New(t)
}

// CreateTestEC2Client creates a real EC2 client for integration
// testing, skipping the test when credentials are missing.
func CreateTestEC2Client(t *testing.T) *awsutil.EC2Client {
	t.Helper()

	SkipIfNoAWSCredentials(t)

	client, err := awsutil.NewEC2Client(context.Background(), Region(), config.Default(), CreateTestLogger(t))
	if err != nil {
		t.Fatalf("Failed to create EC2 client: %v", err)
	}
	return client
}
