package lib

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/config"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/lifecycle"
	"github.com/johnlam90/aws-eni-manager/pkg/metadata"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
)

type fixedIdentity struct {
	identity *metadata.NetworkIdentity
}

func (f fixedIdentity) Identity(ctx context.Context) (*metadata.NetworkIdentity, error) {
	return f.identity, nil
}

// newTestManager wires the facade to in-memory collaborators.
func newTestManager(t *testing.T) (*ENIManager, *aws.MockCloudClient) {
	cloud := aws.NewMockCloudClient()
	cloud.AddSubnet("subnet-123", "10.0.0.0/24")

	local := netif.NewMockLocalInterface()
	local.AddDevice(netif.Device{
		Name:         "eth0",
		Index:        2,
		DeviceNumber: 0,
		InterfaceID:  "eni-primary",
		SubnetID:     "subnet-123",
		SubnetCIDR:   "10.0.0.0/24",
		MAC:          "02:00:00:00:00:01",
		Gateway:      "10.0.0.1",
		Primary:      true,
		Addresses:    []string{"10.0.0.10"},
	})
	cloud.OnAttach = func(interfaceID, instanceID string, deviceIndex int) {
		eni := cloud.Interfaces[interfaceID]
		local.AddDevice(netif.Device{
			Name:         "eth1",
			Index:        3,
			DeviceNumber: deviceIndex,
			InterfaceID:  interfaceID,
			SubnetID:     eni.SubnetID,
			SubnetCIDR:   "10.0.0.0/24",
			Gateway:      "10.0.0.1",
			Addresses:    []string{eni.PrimaryIP()},
		})
	}
	cloud.OnDetach = local.RemoveDevice

	cfg := config.Default()
	cfg.Timeout = 2 * time.Second
	cfg.PollInterval = 2 * time.Millisecond

	identity := &metadata.NetworkIdentity{
		InstanceID:       "i-0test00000000001",
		AvailabilityZone: "us-east-1a",
		Region:           "us-east-1",
		VpcID:            cloud.VpcID,
		VpcCIDR:          "10.0.0.0/16",
	}

	manager, err := NewENIManagerWithConfig(cfg, testr.New(t),
		lifecycle.WithCloudClient(cloud),
		lifecycle.WithLocalInterface(local),
		lifecycle.WithIdentitySource(fixedIdentity{identity}))
	require.NoError(t, err)
	return manager, cloud
}

func TestNewENIManagerWithConfig(t *testing.T) {
	logger := testr.New(t)

	_, err := NewENIManagerWithConfig(nil, logger)
	assert.Error(t, err)

	cfg := config.Default()
	manager, err := NewENIManagerWithConfig(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, manager)
	assert.Same(t, cfg, manager.config)
}

func TestENIManagerRoundtrip(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	created, err := manager.CreateENI(ctx, CreateOptions{Description: "facade test"})
	require.NoError(t, err)
	require.NotEmpty(t, created.InterfaceID)

	attached, err := manager.AttachENI(ctx, AttachOptions{InterfaceID: created.InterfaceID})
	require.NoError(t, err)
	assert.Equal(t, created.InterfaceID, attached.InterfaceID)

	assigned, err := manager.AssignAddress(ctx, AssignOptions{InterfaceID: created.InterfaceID})
	require.NoError(t, err)
	assert.NotEmpty(t, assigned.Address)

	_, err = manager.UnassignAddress(ctx, UnassignOptions{
		InterfaceID: created.InterfaceID,
		Address:     assigned.Address,
	})
	require.NoError(t, err)

	detached, err := manager.DetachENI(ctx, DetachOptions{InterfaceID: created.InterfaceID})
	require.NoError(t, err)
	assert.True(t, detached.Deleted)
}

func TestENIManagerIdentity(t *testing.T) {
	manager, _ := newTestManager(t)

	identity, err := manager.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", identity.Region)
	assert.Equal(t, "i-0test00000000001", identity.InstanceID)
}

func TestENIManagerPreservesErrorKinds(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.CreateENI(ctx, CreateOptions{SubnetID: "subnet-nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create network interface")
	assert.True(t, errors.Is(err, errors.KindUnknownInterface),
		"the facade wrap must not hide the error kind")

	_, err = manager.AttachENI(ctx, AttachOptions{})
	assert.True(t, errors.Is(err, errors.KindInvalidParameter))
}
