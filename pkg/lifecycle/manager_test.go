package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/config"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/metadata"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
)

const (
	testInstanceID = "i-0test00000000001"
	testRegion     = "us-east-1"
	testAZ         = "us-east-1a"
	testVpcCIDR    = "10.0.0.0/16"
	testSubnetID   = "subnet-123"
	testSubnetCIDR = "10.0.0.0/24"
	testPrimaryENI = "eni-primary"
	testPrimaryIP  = "10.0.0.10"
)

// staticIdentity pins the instance identity without a metadata service.
type staticIdentity struct {
	identity *metadata.NetworkIdentity
}

func (s staticIdentity) Identity(ctx context.Context) (*metadata.NetworkIdentity, error) {
	return s.identity, nil
}

// harness wires a lifecycle manager to the in-memory cloud and local
// mocks. Cloud attachments flow into the local mock the way IMDS and
// the kernel would surface them.
type harness struct {
	cloud *aws.MockCloudClient
	local *netif.MockLocalInterface
	cfg   *config.Settings
	mgr   *Manager
}

func newHarness(t *testing.T) *harness {
	cloud := aws.NewMockCloudClient()
	cloud.AddSubnet(testSubnetID, testSubnetCIDR)
	cloud.AddInterface(&aws.NetworkInterface{
		InterfaceID: testPrimaryENI,
		Status:      aws.InterfaceStatusInUse,
		SubnetID:    testSubnetID,
		VpcID:       cloud.VpcID,
		PrivateIPs:  []aws.PrivateIP{{Address: testPrimaryIP, Primary: true}},
		Attachment: &aws.Attachment{
			AttachmentID: "eni-attach-primary",
			InstanceID:   testInstanceID,
			DeviceIndex:  0,
			Status:       "attached",
		},
	})

	local := netif.NewMockLocalInterface()
	local.AddDevice(netif.Device{
		Name:         "eth0",
		Index:        2,
		DeviceNumber: 0,
		InterfaceID:  testPrimaryENI,
		SubnetID:     testSubnetID,
		SubnetCIDR:   testSubnetCIDR,
		MAC:          "02:00:00:00:00:01",
		Gateway:      "10.0.0.1",
		Primary:      true,
		Addresses:    []string{testPrimaryIP},
	})

	cloud.OnAttach = func(interfaceID, instanceID string, deviceIndex int) {
		eni := cloud.Interfaces[interfaceID]
		var addresses []string
		for _, ip := range eni.PrivateIPs {
			addresses = append(addresses, ip.Address)
		}
		local.AddDevice(netif.Device{
			Name:         fmt.Sprintf("eth%d", deviceIndex),
			Index:        2 + deviceIndex,
			DeviceNumber: deviceIndex,
			InterfaceID:  interfaceID,
			SubnetID:     eni.SubnetID,
			SubnetCIDR:   testSubnetCIDR,
			MAC:          eni.MacAddress,
			Gateway:      "10.0.0.1",
			Addresses:    addresses,
		})
	}
	cloud.OnDetach = func(interfaceID string) {
		local.RemoveDevice(interfaceID)
	}

	cfg := config.Default()
	cfg.Timeout = 2 * time.Second
	cfg.PollInterval = 2 * time.Millisecond

	identity := &metadata.NetworkIdentity{
		InstanceID:       testInstanceID,
		AvailabilityZone: testAZ,
		Region:           testRegion,
		VpcID:            cloud.VpcID,
		VpcCIDR:          testVpcCIDR,
	}

	mgr := NewManager(cfg, testr.New(t),
		WithCloudClient(cloud),
		WithLocalInterface(local),
		WithIdentitySource(staticIdentity{identity}))

	return &harness{cloud: cloud, local: local, cfg: cfg, mgr: mgr}
}

// createAndAttach runs Create and Attach and returns both results.
func (h *harness) createAndAttach(t *testing.T, ctx context.Context) (*CreateResult, *AttachResult) {
	created, err := h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)
	attached, err := h.mgr.Attach(ctx, AttachOptions{InterfaceID: created.InterfaceID})
	require.NoError(t, err)
	return created, attached
}

func TestCreateAttachDetachLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.mgr.Create(ctx, CreateOptions{Description: "scratch interface"})
	require.NoError(t, err)
	assert.Equal(t, testSubnetID, created.SubnetID, "subnet defaults to the primary interface's subnet")
	require.NotNil(t, created.Interface)
	assert.Equal(t, h.cfg.OwnerTag, created.Interface.Tags[TagCreatedBy])
	assert.Equal(t, testInstanceID, created.Interface.Tags[TagCreatedFrom])
	_, err = time.Parse(time.RFC3339, created.Interface.Tags[TagCreatedOn])
	assert.NoError(t, err)

	attached, err := h.mgr.Attach(ctx, AttachOptions{InterfaceID: created.InterfaceID})
	require.NoError(t, err)
	assert.Equal(t, 1, attached.DeviceNumber, "first free slot after the primary")
	assert.Equal(t, "eth1", attached.Name)
	assert.NotEmpty(t, attached.AttachmentID)
	assert.Equal(t, aws.InterfaceStatusInUse, attached.Interface.Status)
	assert.True(t, h.local.Configured(created.InterfaceID))
	assert.True(t, h.local.Enabled(created.InterfaceID))

	detached, err := h.mgr.Detach(ctx, DetachOptions{InterfaceID: created.InterfaceID})
	require.NoError(t, err)
	assert.True(t, detached.Deleted, "an owned interface is deleted by default")
	assert.Equal(t, 1, detached.DeviceNumber)
	assert.Equal(t, 1, h.cloud.Calls("DeleteInterface"))

	gone, err := h.cloud.DescribeInterface(ctx, created.InterfaceID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	present, err := h.local.Exists(ctx, netif.ByID(created.InterfaceID))
	require.NoError(t, err)
	assert.False(t, present)
}

func TestCreateWithExplicitSubnetAndTags(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.cloud.AddSubnet("subnet-456", "10.0.1.0/24")

	created, err := h.mgr.Create(ctx, CreateOptions{
		SubnetID: "subnet-456",
		Tags:     map[string]string{"team": "networking"},
	})
	require.NoError(t, err)
	assert.Equal(t, "subnet-456", created.SubnetID)
	assert.Equal(t, "networking", created.Interface.Tags["team"])
	assert.Equal(t, h.cfg.OwnerTag, created.Interface.Tags[TagCreatedBy])
	assert.Equal(t, 1, h.cloud.Calls("CreateTags"))
}

func TestCreateTagFailureIsAcceptedAfterRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// One failure is absorbed by the retry.
	h.cloud.SetFailuresBeforeSuccess("CreateTags", 1)
	created, err := h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, h.cloud.Calls("CreateTags"))
	assert.Equal(t, h.cfg.OwnerTag, created.Interface.Tags[TagCreatedBy])

	// Persistent failure leaves the interface in place, untagged.
	h.cloud.SetFailureScenario("CreateTags", true)
	created, err = h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)
	_, tagged := created.Interface.Tag(TagCreatedBy)
	assert.False(t, tagged)
	still, err := h.cloud.DescribeInterface(ctx, created.InterfaceID)
	require.NoError(t, err)
	require.NotNil(t, still, "a tagging failure must not destroy the interface")
}

func TestCreateUnknownSubnet(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Create(context.Background(), CreateOptions{SubnetID: "subnet-missing"})
	assert.True(t, errors.Is(err, errors.KindUnknownInterface))
}

func TestAttachRequiresInterfaceID(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Attach(context.Background(), AttachOptions{})
	assert.True(t, errors.Is(err, errors.KindInvalidParameter))
	assert.Equal(t, 0, h.cloud.Calls("AttachInterface"))
}

func TestAttachOccupiedSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, attached := h.createAndAttach(t, ctx)
	assert.Equal(t, 1, attached.DeviceNumber)

	second, err := h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)

	_, err = h.mgr.Attach(ctx, AttachOptions{InterfaceID: second.InterfaceID, DeviceNumber: 1})
	assert.True(t, errors.Is(err, errors.KindInvalidParameter))
	assert.Equal(t, 1, h.cloud.Calls("AttachInterface"), "the occupied slot is refused before the cloud call")

	// The next free slot still works.
	result, err := h.mgr.Attach(ctx, AttachOptions{InterfaceID: second.InterfaceID})
	require.NoError(t, err)
	assert.Equal(t, 2, result.DeviceNumber)
	assert.NotEqual(t, created.InterfaceID, result.InterfaceID)
}

func TestAttachNameSelectsSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)

	attached, err := h.mgr.Attach(ctx, AttachOptions{InterfaceID: created.InterfaceID, Name: "eth3"})
	require.NoError(t, err)
	assert.Equal(t, 3, attached.DeviceNumber)
	assert.Equal(t, "eth3", attached.Name)
}

func TestAttachNameNumberMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)

	_, err = h.mgr.Attach(ctx, AttachOptions{
		InterfaceID:  created.InterfaceID,
		Name:         "eth2",
		DeviceNumber: 3,
	})
	assert.True(t, errors.Is(err, errors.KindInvalidParameter))
	assert.Equal(t, 0, h.cloud.Calls("AttachInterface"))
}

func TestAttachWithoutPrivilege(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.local.Privileged = false

	created, err := h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)

	_, err = h.mgr.Attach(ctx, AttachOptions{InterfaceID: created.InterfaceID})
	assert.True(t, errors.Is(err, errors.KindPermission))
	assert.Equal(t, 0, h.cloud.Calls("AttachInterface"), "the privilege check precedes any cloud call")

	// Attaching without local configuration needs no privilege.
	attached, err := h.mgr.Attach(ctx, AttachOptions{
		InterfaceID: created.InterfaceID,
		NoConfigure: true,
		NoEnable:    true,
	})
	require.NoError(t, err)
	assert.False(t, h.local.Configured(created.InterfaceID))
	assert.False(t, h.local.Enabled(created.InterfaceID))
	assert.Equal(t, 1, attached.DeviceNumber)
}

func TestAttachToleratesMetadataLag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.mgr.Create(ctx, CreateOptions{})
	require.NoError(t, err)

	// The local existence probe fails transiently while metadata
	// catches up; the wait must ride through it.
	h.local.SetFailureError("Exists", errors.New(errors.KindConnectionFailed,
		"metadata endpoint unreachable", nil, nil))
	h.local.SetFailuresBeforeSuccess("Exists", 3)

	attached, err := h.mgr.Attach(ctx, AttachOptions{InterfaceID: created.InterfaceID})
	require.NoError(t, err)
	assert.Equal(t, 1, attached.DeviceNumber)
	assert.GreaterOrEqual(t, h.local.Calls("Exists"), 4)
}

func TestDetachDeviceNumberMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, _ := h.createAndAttach(t, ctx)

	_, err := h.mgr.Detach(ctx, DetachOptions{
		InterfaceID:  created.InterfaceID,
		DeviceNumber: 2,
	})
	assert.True(t, errors.Is(err, errors.KindInvalidParameter))
	assert.Equal(t, 0, h.cloud.Calls("DetachInterface"))
	assert.Equal(t, 0, h.cloud.Calls("DeleteInterface"))
	assert.True(t, h.local.Enabled(created.InterfaceID), "the device is untouched on a selector mismatch")
}

func TestDetachKeepsForeignInterface(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// An interface we did not create carries no ownership tag.
	foreign := &aws.NetworkInterface{
		InterfaceID: "eni-foreign",
		Status:      aws.InterfaceStatusAvailable,
		SubnetID:    testSubnetID,
		VpcID:       h.cloud.VpcID,
		PrivateIPs:  []aws.PrivateIP{{Address: "10.0.0.200", Primary: true}},
	}
	h.cloud.AddInterface(foreign)

	_, err := h.mgr.Attach(ctx, AttachOptions{InterfaceID: "eni-foreign"})
	require.NoError(t, err)

	detached, err := h.mgr.Detach(ctx, DetachOptions{InterfaceID: "eni-foreign", Block: true})
	require.NoError(t, err)
	assert.False(t, detached.Deleted)
	assert.Equal(t, 0, h.cloud.Calls("DeleteInterface"))
	require.NotNil(t, detached.Interface)
	assert.Equal(t, aws.InterfaceStatusAvailable, detached.Interface.Status)
}

func TestDetachDeleteOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, _ := h.createAndAttach(t, ctx)

	// Delete=false keeps an owned interface.
	keep := false
	detached, err := h.mgr.Detach(ctx, DetachOptions{InterfaceID: created.InterfaceID, Delete: &keep})
	require.NoError(t, err)
	assert.False(t, detached.Deleted)
	assert.Equal(t, 0, h.cloud.Calls("DeleteInterface"))

	// Delete=true removes a foreign one.
	h.cloud.AddInterface(&aws.NetworkInterface{
		InterfaceID: "eni-foreign",
		Status:      aws.InterfaceStatusAvailable,
		SubnetID:    testSubnetID,
		VpcID:       h.cloud.VpcID,
		PrivateIPs:  []aws.PrivateIP{{Address: "10.0.0.201", Primary: true}},
	})
	_, err = h.mgr.Attach(ctx, AttachOptions{InterfaceID: "eni-foreign"})
	require.NoError(t, err)

	del := true
	detached, err = h.mgr.Detach(ctx, DetachOptions{InterfaceID: "eni-foreign", Delete: &del})
	require.NoError(t, err)
	assert.True(t, detached.Deleted)
	assert.Equal(t, 1, h.cloud.Calls("DeleteInterface"))
}

func TestDetachWithoutAttachment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Locally visible but no live attachment on the provider side.
	h.cloud.AddInterface(&aws.NetworkInterface{
		InterfaceID: "eni-stale",
		Status:      aws.InterfaceStatusAvailable,
		SubnetID:    testSubnetID,
		VpcID:       h.cloud.VpcID,
	})
	h.local.AddDevice(netif.Device{
		Name:         "eth1",
		Index:        3,
		DeviceNumber: 1,
		InterfaceID:  "eni-stale",
		SubnetID:     testSubnetID,
		SubnetCIDR:   testSubnetCIDR,
		Gateway:      "10.0.0.1",
	})

	_, err := h.mgr.Detach(ctx, DetachOptions{InterfaceID: "eni-stale"})
	assert.True(t, errors.Is(err, errors.KindUnknownInterface))
	assert.Equal(t, 0, h.cloud.Calls("DetachInterface"))
}

func TestDetachUnknownDevice(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Detach(context.Background(), DetachOptions{InterfaceID: "eni-nowhere"})
	assert.True(t, errors.Is(err, errors.KindUnknownInterface))

	_, err = h.mgr.Detach(context.Background(), DetachOptions{})
	assert.True(t, errors.Is(err, errors.KindInvalidParameter))
}
