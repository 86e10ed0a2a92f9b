//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	awsutil "github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/poll"
	"github.com/johnlam90/aws-eni-manager/pkg/test"
)

// TestIntegration_InterfaceRoundtrip creates a real network interface,
// waits for it to become available and deletes it again.
func TestIntegration_InterfaceRoundtrip(t *testing.T) {
	client := test.CreateTestEC2Client(t)
	subnetID := test.SubnetID(t)
	logger := test.CreateTestLogger(t)

	ctx := context.Background()
	created, err := client.CreateInterface(ctx, subnetID, test.SecurityGroupIDs(), "Integration test interface", map[string]string{
		"Name":        "integration-test-eni",
		"CreatedBy":   "aws-eni-manager-test",
		"TestCase":    "TestIntegration_InterfaceRoundtrip",
		"DeleteAfter": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Failed to create interface: %v", err)
	}
	t.Logf("Created interface: %s", created.InterfaceID)

	defer func() {
		if err := client.DeleteInterface(ctx, created.InterfaceID); err != nil {
			t.Logf("Failed to delete interface %s: %v", created.InterfaceID, err)
		} else {
			t.Logf("Deleted interface: %s", created.InterfaceID)
		}
	}()

	// A fresh interface can take a moment to become describable and
	// available.
	var described *awsutil.NetworkInterface
	err = poll.WaitUntil(ctx, logger, poll.Spec{
		Description: fmt.Sprintf("interface %s available", created.InterfaceID),
		Timeout:     30 * time.Second,
		Interval:    2 * time.Second,
	}, func(ctx context.Context) (bool, error) {
		described, err = client.DescribeInterface(ctx, created.InterfaceID)
		if err != nil {
			return false, err
		}
		return described != nil && described.Status == awsutil.InterfaceStatusAvailable, nil
	})
	if err != nil {
		t.Fatalf("Interface never became available: %v", err)
	}

	if described.InterfaceID != created.InterfaceID {
		t.Errorf("Expected interface ID %s, got %s", created.InterfaceID, described.InterfaceID)
	}
	if described.SubnetID != subnetID {
		t.Errorf("Expected subnet ID %s, got %s", subnetID, described.SubnetID)
	}
	if described.PrimaryIP() == "" {
		t.Error("Expected a primary private address")
	}
	t.Logf("Interface %s is available with primary address %s", described.InterfaceID, described.PrimaryIP())
}

// TestIntegration_DescribeByTagFilter creates an interface with a
// unique tag and finds it again through a tag filter.
func TestIntegration_DescribeByTagFilter(t *testing.T) {
	client := test.CreateTestEC2Client(t)
	subnetID := test.SubnetID(t)
	logger := test.CreateTestLogger(t)

	ctx := context.Background()
	marker := fmt.Sprintf("roundtrip-%d", time.Now().UnixNano())
	created, err := client.CreateInterface(ctx, subnetID, test.SecurityGroupIDs(), "Integration test interface", map[string]string{
		"CreatedBy": "aws-eni-manager-test",
		"TestCase":  marker,
	})
	if err != nil {
		t.Fatalf("Failed to create interface: %v", err)
	}
	t.Logf("Created interface %s with marker %s", created.InterfaceID, marker)

	defer func() {
		if err := client.DeleteInterface(ctx, created.InterfaceID); err != nil {
			t.Logf("Failed to delete interface %s: %v", created.InterfaceID, err)
		} else {
			t.Logf("Deleted interface: %s", created.InterfaceID)
		}
	}()

	// Tag filters are eventually consistent.
	err = poll.WaitUntil(ctx, logger, poll.Spec{
		Description: "tag filter sees the new interface",
		Timeout:     30 * time.Second,
		Interval:    2 * time.Second,
	}, func(ctx context.Context) (bool, error) {
		matches, err := client.DescribeInterfaces(ctx, []awsutil.Filter{
			{Name: "tag:TestCase", Values: []string{marker}},
		})
		if err != nil {
			return false, err
		}
		for _, match := range matches {
			if match.InterfaceID == created.InterfaceID {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("Tag filter never returned the interface: %v", err)
	}
}

// TestIntegration_ElasticAddressRoundtrip allocates a real elastic IP,
// finds it by allocation id and releases it.
func TestIntegration_ElasticAddressRoundtrip(t *testing.T) {
	client := test.CreateTestEC2Client(t)

	ctx := context.Background()
	address, err := client.AllocateAddress(ctx, map[string]string{
		"CreatedBy": "aws-eni-manager-test",
		"TestCase":  "TestIntegration_ElasticAddressRoundtrip",
	})
	if err != nil {
		t.Fatalf("Failed to allocate address: %v", err)
	}
	t.Logf("Allocated address %s (%s)", address.PublicIP, address.AllocationID)

	released := false
	defer func() {
		if released {
			return
		}
		if err := client.ReleaseAddress(ctx, address.AllocationID); err != nil {
			t.Logf("Failed to release address %s: %v", address.AllocationID, err)
		}
	}()

	if address.PublicIP == "" {
		t.Error("Expected a public IP on the allocation")
	}
	if address.AllocationID == "" {
		t.Fatal("Expected an allocation ID")
	}

	matches, err := client.DescribeAddresses(ctx, []awsutil.Filter{
		{Name: "allocation-id", Values: []string{address.AllocationID}},
	})
	if err != nil {
		t.Fatalf("Failed to describe addresses: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 address for allocation %s, got %d", address.AllocationID, len(matches))
	}
	if matches[0].PublicIP != address.PublicIP {
		t.Errorf("Expected public IP %s, got %s", address.PublicIP, matches[0].PublicIP)
	}

	if err := client.ReleaseAddress(ctx, address.AllocationID); err != nil {
		t.Fatalf("Failed to release address: %v", err)
	}
	released = true
	t.Logf("Released address: %s", address.AllocationID)
}
