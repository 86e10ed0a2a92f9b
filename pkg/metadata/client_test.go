package metadata

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

const testMac = "02:e1:3f:aa:bb:cc"

func identityResponses() map[string]string {
	responses := map[string]string{
		"instance-id":                 "i-0123456789abcdef0\n",
		"placement/availability-zone": "us-east-1a\n",
	}
	responses[macPath(testMac, "vpc-id")] = "vpc-0a1b2c3d\n"
	responses[macPath(testMac, "vpc-ipv4-cidr-block")] = "10.0.0.0/16\n"
	return responses
}

func newTestClient(t *testing.T, api *fakeMetadataAPI) *Client {
	return NewClient(NewConnectorWithAPI(api, testSettings(), testr.New(t)), testr.New(t))
}

func TestResolveIdentity(t *testing.T) {
	api := &fakeMetadataAPI{responses: identityResponses()}
	client := newTestClient(t, api)

	identity, err := client.ResolveIdentity(context.Background(), testMac)
	if err != nil {
		t.Fatalf("Expected identity resolution to succeed, got %v", err)
	}

	if identity.InstanceID != "i-0123456789abcdef0" {
		t.Errorf("Expected instance id 'i-0123456789abcdef0', got %q", identity.InstanceID)
	}
	if identity.AvailabilityZone != "us-east-1a" {
		t.Errorf("Expected availability zone 'us-east-1a', got %q", identity.AvailabilityZone)
	}
	if identity.Region != "us-east-1" {
		t.Errorf("Expected region 'us-east-1', got %q", identity.Region)
	}
	if identity.VpcID != "vpc-0a1b2c3d" {
		t.Errorf("Expected vpc id 'vpc-0a1b2c3d', got %q", identity.VpcID)
	}
	if identity.VpcCIDR != "10.0.0.0/16" {
		t.Errorf("Expected vpc CIDR '10.0.0.0/16', got %q", identity.VpcCIDR)
	}
	if api.callCount() != 4 {
		t.Errorf("Expected the four lookups to share one session, got %d requests", api.callCount())
	}
}

func TestResolveIdentityOutsideVPC(t *testing.T) {
	responses := identityResponses()
	responses[macPath(testMac, "vpc-id")] = "\n"
	client := newTestClient(t, &fakeMetadataAPI{responses: responses})

	_, err := client.ResolveIdentity(context.Background(), testMac)
	if !errors.Is(err, errors.KindEnvironment) {
		t.Fatalf("Expected KindEnvironment for an instance outside a VPC, got %v", err)
	}
}

func TestDeriveRegion(t *testing.T) {
	cases := []struct {
		az      string
		want    string
		wantErr bool
	}{
		{"us-east-1a", "us-east-1", false},
		{"eu-west-2b", "eu-west-2", false},
		{"ap-southeast-1c", "ap-southeast-1", false},
		{"us-east-1", "", true},
		{"a", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := deriveRegion(tc.az)
		if tc.wantErr {
			if err == nil {
				t.Errorf("deriveRegion(%q): expected an error, got %q", tc.az, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("deriveRegion(%q): unexpected error %v", tc.az, err)
			continue
		}
		if got != tc.want {
			t.Errorf("deriveRegion(%q): expected %q, got %q", tc.az, tc.want, got)
		}
	}
}

func TestMacs(t *testing.T) {
	api := &fakeMetadataAPI{responses: map[string]string{
		"network/interfaces/macs/": "02:e1:3f:aa:bb:cc/\n02:e1:3f:dd:ee:ff/\n",
	}}
	client := newTestClient(t, api)

	macs, err := client.Macs(context.Background())
	if err != nil {
		t.Fatalf("Expected mac listing to succeed, got %v", err)
	}
	if len(macs) != 2 {
		t.Fatalf("Expected 2 macs, got %d", len(macs))
	}
	if macs[0] != "02:e1:3f:aa:bb:cc" || macs[1] != "02:e1:3f:dd:ee:ff" {
		t.Errorf("Expected trailing slashes stripped, got %v", macs)
	}
}

func TestDeviceNumber(t *testing.T) {
	api := &fakeMetadataAPI{responses: map[string]string{
		macPath(testMac, "device-number"): "2\n",
	}}
	client := newTestClient(t, api)

	n, err := client.DeviceNumber(context.Background(), testMac)
	if err != nil {
		t.Fatalf("Expected device number lookup to succeed, got %v", err)
	}
	if n != 2 {
		t.Errorf("Expected device number 2, got %d", n)
	}
}

func TestPrivateIPs(t *testing.T) {
	api := &fakeMetadataAPI{responses: map[string]string{
		macPath(testMac, "local-ipv4s"): "10.0.1.10\n10.0.1.11\n10.0.1.12\n",
	}}
	client := newTestClient(t, api)

	ips, err := client.PrivateIPs(context.Background(), testMac)
	if err != nil {
		t.Fatalf("Expected private IP listing to succeed, got %v", err)
	}
	if len(ips) != 3 {
		t.Fatalf("Expected 3 addresses, got %d", len(ips))
	}
	if ips[0] != "10.0.1.10" {
		t.Errorf("Expected the primary address first, got %q", ips[0])
	}
}
