//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/johnlam90/aws-eni-manager/pkg/lib"
	"github.com/johnlam90/aws-eni-manager/pkg/metadata"
	"github.com/johnlam90/aws-eni-manager/pkg/test"
)

// setupE2ETest builds a manager against the real AWS account and the
// local instance. The whole suite needs to run as root on an EC2
// instance whose role may create, attach and delete interfaces.
func setupE2ETest(t *testing.T) (*lib.ENIManager, *metadata.NetworkIdentity) {
	t.Helper()

	test.SkipIfNoAWSCredentials(t)

	manager := lib.NewENIManager(test.CreateTestLogger(t))

	// The metadata probe doubles as the on-instance check.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	identity, err := manager.Identity(ctx)
	if err != nil {
		t.Skipf("Skipping test that requires the EC2 instance metadata service: %v", err)
	}

	t.Logf("Running on instance %s in %s (%s)", identity.InstanceID, identity.AvailabilityZone, identity.VpcID)
	return manager, identity
}

// cleanupInterface is the safety net for a test that died mid-flow: a
// targeted unsafe clean removes the interface whether or not it ever
// attached.
func cleanupInterface(t *testing.T, manager *lib.ENIManager, interfaceID string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	result, err := manager.CleanENIs(ctx, lib.CleanOptions{Filter: interfaceID, Unsafe: true})
	if err != nil {
		t.Logf("Failed to clean up interface %s: %v", interfaceID, err)
		return
	}
	if len(result.Deleted) > 0 {
		t.Logf("Cleaned up leftover interface: %s", interfaceID)
	}
}

// TestE2E_InterfaceLifecycle walks the whole interface lifecycle on the
// current instance: create, attach, assign and unassign a secondary
// address, then detach with deletion.
func TestE2E_InterfaceLifecycle(t *testing.T) {
	manager, _ := setupE2ETest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// An empty subnet falls back to the subnet of the primary
	// interface, so TEST_SUBNET_ID is optional here.
	created, err := manager.CreateENI(ctx, lib.CreateOptions{
		SubnetID:         os.Getenv("TEST_SUBNET_ID"),
		SecurityGroupIDs: test.SecurityGroupIDs(),
		Description:      "E2E test interface",
		Tags:             map[string]string{"TestCase": "TestE2E_InterfaceLifecycle"},
	})
	if err != nil {
		t.Fatalf("Failed to create interface: %v", err)
	}
	t.Logf("Created interface %s in subnet %s", created.InterfaceID, created.SubnetID)

	deleted := false
	defer func() {
		if !deleted {
			cleanupInterface(t, manager, created.InterfaceID)
		}
	}()

	attached, err := manager.AttachENI(ctx, lib.AttachOptions{InterfaceID: created.InterfaceID})
	if err != nil {
		t.Fatalf("Failed to attach interface: %v", err)
	}
	t.Logf("Attached interface %s at device %d as %s", attached.InterfaceID, attached.DeviceNumber, attached.Name)

	if attached.DeviceNumber == 0 {
		t.Error("Expected a non-primary device number")
	}

	assigned, err := manager.AssignAddress(ctx, lib.AssignOptions{InterfaceID: created.InterfaceID})
	if err != nil {
		t.Fatalf("Failed to assign a secondary address: %v", err)
	}
	t.Logf("Assigned secondary address %s", assigned.Address)

	if assigned.Address == "" {
		t.Fatal("Expected a provider-picked secondary address")
	}

	if _, err := manager.UnassignAddress(ctx, lib.UnassignOptions{
		InterfaceID: created.InterfaceID,
		Address:     assigned.Address,
	}); err != nil {
		t.Fatalf("Failed to unassign the secondary address: %v", err)
	}
	t.Logf("Unassigned secondary address %s", assigned.Address)

	detached, err := manager.DetachENI(ctx, lib.DetachOptions{InterfaceID: created.InterfaceID, Block: true})
	if err != nil {
		t.Fatalf("Failed to detach interface: %v", err)
	}
	if !detached.Deleted {
		t.Error("Expected the interface to be deleted after detach, it carries the ownership tag")
	}
	deleted = detached.Deleted
	t.Logf("Detached interface %s (deleted: %t)", detached.InterfaceID, detached.Deleted)
}

// TestE2E_ElasticAddressLifecycle attaches a fresh interface, binds a
// newly allocated elastic IP to it and tears everything down again.
func TestE2E_ElasticAddressLifecycle(t *testing.T) {
	manager, _ := setupE2ETest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	created, err := manager.CreateENI(ctx, lib.CreateOptions{
		SubnetID:         os.Getenv("TEST_SUBNET_ID"),
		SecurityGroupIDs: test.SecurityGroupIDs(),
		Description:      "E2E test interface",
		Tags:             map[string]string{"TestCase": "TestE2E_ElasticAddressLifecycle"},
	})
	if err != nil {
		t.Fatalf("Failed to create interface: %v", err)
	}
	t.Logf("Created interface %s", created.InterfaceID)

	deleted := false
	defer func() {
		if !deleted {
			cleanupInterface(t, manager, created.InterfaceID)
		}
	}()

	attached, err := manager.AttachENI(ctx, lib.AttachOptions{InterfaceID: created.InterfaceID})
	if err != nil {
		t.Fatalf("Failed to attach interface: %v", err)
	}
	t.Logf("Attached interface %s at device %d", attached.InterfaceID, attached.DeviceNumber)

	// The association goes on the fresh interface, not the primary, so
	// the instance's own public address never changes under the test.
	associated, err := manager.AssociateAddress(ctx, lib.AssociateOptions{InterfaceID: created.InterfaceID})
	if err != nil {
		t.Fatalf("Failed to associate an elastic address: %v", err)
	}
	t.Logf("Associated %s (%s) with %s on %s", associated.PublicIP, associated.AllocationID, associated.PrivateIP, associated.InterfaceID)

	released := false
	defer func() {
		if released {
			return
		}
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cleanupCancel()
		if _, err := manager.DissociateAddress(cleanupCtx, lib.DissociateOptions{
			Address: associated.AllocationID,
			Release: true,
		}); err != nil {
			t.Logf("Failed to clean up elastic address %s: %v", associated.AllocationID, err)
		}
	}()

	if !associated.NewAllocation {
		t.Error("Expected a fresh allocation")
	}
	if associated.PublicIP == "" {
		t.Error("Expected a public IP on the association")
	}

	dissociated, err := manager.DissociateAddress(ctx, lib.DissociateOptions{
		Address: associated.AllocationID,
		Release: true,
	})
	if err != nil {
		t.Fatalf("Failed to dissociate the elastic address: %v", err)
	}
	if !dissociated.Released {
		t.Error("Expected the allocation to be released")
	}
	released = dissociated.Released
	t.Logf("Dissociated and released %s", dissociated.AllocationID)

	detached, err := manager.DetachENI(ctx, lib.DetachOptions{InterfaceID: created.InterfaceID, Block: true})
	if err != nil {
		t.Fatalf("Failed to detach interface: %v", err)
	}
	deleted = detached.Deleted
	t.Logf("Detached interface %s (deleted: %t)", detached.InterfaceID, detached.Deleted)
}
