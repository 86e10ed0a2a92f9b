package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
)

func TestParseCleanFilter(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		region     string
		wantFilter aws.Filter
		wantNil    bool
		wantErr    bool
	}{
		{
			name:    "empty means no filter",
			value:   "",
			region:  "us-east-1",
			wantNil: true,
		},
		{
			name:       "interface id",
			value:      "eni-0123456789abcdef0",
			region:     "us-east-1",
			wantFilter: aws.Filter{Name: "network-interface-id", Values: []string{"eni-0123456789abcdef0"}},
		},
		{
			name:       "subnet id",
			value:      "subnet-0123456789abcdef0",
			region:     "us-east-1",
			wantFilter: aws.Filter{Name: "subnet-id", Values: []string{"subnet-0123456789abcdef0"}},
		},
		{
			name:       "availability zone",
			value:      "us-east-1a",
			region:     "us-east-1",
			wantFilter: aws.Filter{Name: "availability-zone", Values: []string{"us-east-1a"}},
		},
		{
			name:    "bare region is not a zone",
			value:   "us-east-1",
			region:  "us-east-1",
			wantErr: true,
		},
		{
			name:    "zone suffix must be a letter",
			value:   "us-east-11",
			region:  "us-east-1",
			wantErr: true,
		},
		{
			name:    "zone of another region",
			value:   "eu-west-1a",
			region:  "us-east-1",
			wantErr: true,
		},
		{
			name:    "arbitrary text",
			value:   "not-a-valid-prefix",
			region:  "us-east-1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := parseCleanFilter(tt.value, tt.region)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.KindInvalidParameter))
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, filter)
				return
			}
			require.NotNil(t, filter)
			assert.Equal(t, tt.wantFilter, filter.toFilter())
		})
	}
}

func TestParseAddressSelector(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		vpcCIDR string
		want    aws.Filter
		wantErr bool
	}{
		{
			name:  "allocation id",
			value: "eipalloc-0123456789abcdef0",
			want:  aws.Filter{Name: "allocation-id", Values: []string{"eipalloc-0123456789abcdef0"}},
		},
		{
			name:  "association id",
			value: "eipassoc-0123456789abcdef0",
			want:  aws.Filter{Name: "association-id", Values: []string{"eipassoc-0123456789abcdef0"}},
		},
		{
			name:    "private address inside the vpc",
			value:   "10.0.1.20",
			vpcCIDR: "10.0.0.0/16",
			want:    aws.Filter{Name: "private-ip-address", Values: []string{"10.0.1.20"}},
		},
		{
			name:    "public address outside the vpc",
			value:   "52.95.1.2",
			vpcCIDR: "10.0.0.0/16",
			want:    aws.Filter{Name: "public-ip", Values: []string{"52.95.1.2"}},
		},
		{
			name:  "ip without a vpc cidr is public",
			value: "10.0.1.20",
			want:  aws.Filter{Name: "public-ip", Values: []string{"10.0.1.20"}},
		},
		{
			name:    "garbage",
			value:   "not-an-address",
			wantErr: true,
		},
		{
			name:    "empty",
			value:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := parseAddressSelector(tt.value, tt.vpcCIDR)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.KindInvalidParameter))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, filter)
		})
	}
}

func TestDeviceRef(t *testing.T) {
	assert.True(t, deviceRef("", "", 0).Empty())

	ref := deviceRef("eni-123", "", 0)
	assert.Equal(t, "eni-123", ref.InterfaceID)
	assert.Equal(t, netif.UnsetDeviceNumber, ref.DeviceNumber)

	ref = deviceRef("", "eth2", 2)
	assert.Equal(t, "eth2", ref.Name)
	assert.Equal(t, 2, ref.DeviceNumber)

	// Slot 0 is the primary interface; a zero device number is unset.
	assert.Equal(t, netif.UnsetDeviceNumber, deviceRef("", "", 0).DeviceNumber)
}

func TestCrossCheckDevice(t *testing.T) {
	dev := &netif.Device{
		Name:         "eth1",
		DeviceNumber: 1,
		InterfaceID:  "eni-123",
	}

	assert.NoError(t, crossCheckDevice(dev, "", "", 0))
	assert.NoError(t, crossCheckDevice(dev, "eni-123", "eth1", 1))

	tests := []struct {
		name         string
		interfaceID  string
		deviceName   string
		deviceNumber int
	}{
		{name: "wrong interface id", interfaceID: "eni-456"},
		{name: "wrong name", deviceName: "eth2"},
		{name: "wrong device number", deviceNumber: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := crossCheckDevice(dev, tt.interfaceID, tt.deviceName, tt.deviceNumber)
			assert.True(t, errors.Is(err, errors.KindInvalidParameter))
		})
	}
}
