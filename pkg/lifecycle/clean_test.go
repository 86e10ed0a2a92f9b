package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// seedCleanCandidate registers an available interface with the given
// tags in the mock VPC.
func (h *harness) seedCleanCandidate(interfaceID, subnetID string, tags map[string]string) {
	h.cloud.AddInterface(&aws.NetworkInterface{
		InterfaceID:      interfaceID,
		Status:           aws.InterfaceStatusAvailable,
		SubnetID:         subnetID,
		VpcID:            h.cloud.VpcID,
		AvailabilityZone: testAZ,
		Tags:             tags,
	})
}

func TestCleanSafeMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.cfg.OwnerTag
	now := time.Now().UTC()

	h.seedCleanCandidate("eni-ours-old", testSubnetID, map[string]string{
		TagCreatedBy: owner,
		TagCreatedOn: now.Add(-5 * time.Minute).Format(time.RFC3339),
	})
	h.seedCleanCandidate("eni-ours-young", testSubnetID, map[string]string{
		TagCreatedBy: owner,
		TagCreatedOn: now.Add(-10 * time.Second).Format(time.RFC3339),
	})
	h.seedCleanCandidate("eni-ours-mangled", testSubnetID, map[string]string{
		TagCreatedBy: owner,
		TagCreatedOn: "not-a-timestamp",
	})
	h.seedCleanCandidate("eni-foreign", testSubnetID, map[string]string{
		TagCreatedBy: "someone-else",
		TagCreatedOn: now.Add(-5 * time.Minute).Format(time.RFC3339),
	})

	result, err := h.mgr.Clean(ctx, CleanOptions{})
	require.NoError(t, err)

	// Expired and unparsable timestamps are eligible, fresh ones are
	// protected, foreign owners are never candidates.
	assert.ElementsMatch(t, []string{"eni-ours-old", "eni-ours-mangled"}, result.Deleted)
	assert.Equal(t, []string{"eni-ours-young"}, result.Skipped)

	foreign, err := h.cloud.DescribeInterface(ctx, "eni-foreign")
	require.NoError(t, err)
	assert.NotNil(t, foreign, "a foreign interface survives safe mode")
	young, err := h.cloud.DescribeInterface(ctx, "eni-ours-young")
	require.NoError(t, err)
	assert.NotNil(t, young, "a freshly created interface survives safe mode")
}

func TestCleanNeverTouchesAttachedInterfaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// The primary interface is in use, so the status filter excludes it.
	result, err := h.mgr.Clean(ctx, CleanOptions{Unsafe: true})
	require.NoError(t, err)
	assert.Empty(t, result.Deleted)

	primary, err := h.cloud.DescribeInterface(ctx, testPrimaryENI)
	require.NoError(t, err)
	assert.NotNil(t, primary)
}

func TestCleanUnsafeMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedCleanCandidate("eni-foreign", testSubnetID, map[string]string{
		TagCreatedBy: "someone-else",
	})
	h.seedCleanCandidate("eni-untagged", testSubnetID, nil)

	result, err := h.mgr.Clean(ctx, CleanOptions{Unsafe: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"eni-foreign", "eni-untagged"}, result.Deleted)
	assert.Empty(t, result.Skipped)
}

func TestCleanInvalidFilter(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Clean(context.Background(), CleanOptions{Filter: "not-a-valid-prefix"})
	assert.True(t, errors.Is(err, errors.KindInvalidParameter))
	assert.Equal(t, 0, h.cloud.Calls("DescribeInterfaces"))
	assert.Equal(t, 0, h.cloud.Calls("DeleteInterface"))
}

func TestCleanFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.cfg.OwnerTag
	old := time.Now().UTC().Add(-5 * time.Minute).Format(time.RFC3339)

	h.cloud.AddSubnet("subnet-456", "10.0.1.0/24")
	h.seedCleanCandidate("eni-in-123", testSubnetID, map[string]string{
		TagCreatedBy: owner, TagCreatedOn: old,
	})
	h.seedCleanCandidate("eni-in-456", "subnet-456", map[string]string{
		TagCreatedBy: owner, TagCreatedOn: old,
	})

	t.Run("by subnet", func(t *testing.T) {
		result, err := h.mgr.Clean(ctx, CleanOptions{Filter: "subnet-456"})
		require.NoError(t, err)
		assert.Equal(t, []string{"eni-in-456"}, result.Deleted)
	})

	t.Run("by interface id", func(t *testing.T) {
		result, err := h.mgr.Clean(ctx, CleanOptions{Filter: "eni-in-123"})
		require.NoError(t, err)
		assert.Equal(t, []string{"eni-in-123"}, result.Deleted)
	})

	t.Run("by availability zone", func(t *testing.T) {
		h.seedCleanCandidate("eni-in-zone", testSubnetID, map[string]string{
			TagCreatedBy: owner, TagCreatedOn: old,
		})
		result, err := h.mgr.Clean(ctx, CleanOptions{Filter: testAZ})
		require.NoError(t, err)
		assert.Equal(t, []string{"eni-in-zone"}, result.Deleted)
	})
}

func TestCleanContinuesPastDeleteFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.cfg.OwnerTag
	old := time.Now().UTC().Add(-5 * time.Minute).Format(time.RFC3339)

	h.seedCleanCandidate("eni-aaa", testSubnetID, map[string]string{
		TagCreatedBy: owner, TagCreatedOn: old,
	})
	h.seedCleanCandidate("eni-bbb", testSubnetID, map[string]string{
		TagCreatedBy: owner, TagCreatedOn: old,
	})

	// Candidates are processed in id order, so the injected failure
	// hits eni-aaa.
	h.cloud.SetFailuresBeforeSuccess("DeleteInterface", 1)

	result, err := h.mgr.Clean(ctx, CleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"eni-bbb"}, result.Deleted)
	assert.Equal(t, []string{"eni-aaa"}, result.Skipped)
}
