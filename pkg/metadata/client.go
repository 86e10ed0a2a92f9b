package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// NetworkIdentity is the instance's network identity snapshot.
type NetworkIdentity struct {
	InstanceID       string `json:"instanceID"`
	AvailabilityZone string `json:"availabilityZone"`
	Region           string `json:"region"`
	VpcID            string `json:"vpcID"`
	VpcCIDR          string `json:"vpcCIDR"`
}

// Client reads path-keyed values from the metadata service and
// assembles the instance's network identity.
type Client struct {
	conn *Connector

	// Logger is used for structured logging.
	Logger logr.Logger
}

// NewClient creates a metadata client on top of the given connector.
func NewClient(conn *Connector, logger logr.Logger) *Client {
	return &Client{
		conn:   conn,
		Logger: logger.WithName("metadata-client"),
	}
}

// Get fetches a single metadata path.
func (m *Client) Get(ctx context.Context, path string) (string, error) {
	var value string
	err := m.conn.Session(ctx, func(ctx context.Context, api API) error {
		v, err := m.conn.get(ctx, api, path)
		if err != nil {
			return err
		}
		value = strings.TrimSpace(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// ResolveIdentity assembles the instance's network identity from four
// lookups issued inside a single connector session. The mac argument is
// the hardware address of the instance's primary interface.
func (m *Client) ResolveIdentity(ctx context.Context, mac string) (*NetworkIdentity, error) {
	log := m.Logger.WithValues("mac", mac)
	log.V(1).Info("Resolving instance network identity")

	identity := &NetworkIdentity{}
	err := m.conn.Session(ctx, func(ctx context.Context, api API) error {
		var err error
		if identity.InstanceID, err = m.sessionGet(ctx, api, "instance-id"); err != nil {
			return err
		}
		if identity.AvailabilityZone, err = m.sessionGet(ctx, api, "placement/availability-zone"); err != nil {
			return err
		}
		if identity.VpcID, err = m.sessionGet(ctx, api, macPath(mac, "vpc-id")); err != nil {
			return err
		}
		if identity.VpcCIDR, err = m.sessionGet(ctx, api, macPath(mac, "vpc-ipv4-cidr-block")); err != nil {
			return err
		}

		if identity.VpcID == "" {
			return errors.New(errors.KindEnvironment,
				"instance is not running inside a VPC", nil, nil)
		}

		identity.Region, err = deriveRegion(identity.AvailabilityZone)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("Resolved instance network identity",
		"instanceID", identity.InstanceID, "region", identity.Region, "vpcID", identity.VpcID)
	return identity, nil
}

// Macs lists the hardware addresses of the interfaces the metadata
// service knows about.
func (m *Client) Macs(ctx context.Context) ([]string, error) {
	raw, err := m.Get(ctx, "network/interfaces/macs/")
	if err != nil {
		return nil, err
	}

	var macs []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), "/")
		if line != "" {
			macs = append(macs, line)
		}
	}
	return macs, nil
}

// DeviceNumber returns the attachment device index for the interface
// with the given hardware address.
func (m *Client) DeviceNumber(ctx context.Context, mac string) (int, error) {
	raw, err := m.Get(ctx, macPath(mac, "device-number"))
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("unexpected device number %q for mac %s: %v", raw, mac, err)
	}
	return n, nil
}

// InterfaceID returns the ENI id for the interface with the given
// hardware address.
func (m *Client) InterfaceID(ctx context.Context, mac string) (string, error) {
	return m.Get(ctx, macPath(mac, "interface-id"))
}

// SubnetID returns the subnet id for the interface with the given
// hardware address.
func (m *Client) SubnetID(ctx context.Context, mac string) (string, error) {
	return m.Get(ctx, macPath(mac, "subnet-id"))
}

// SubnetCIDR returns the subnet IPv4 CIDR block for the interface with
// the given hardware address.
func (m *Client) SubnetCIDR(ctx context.Context, mac string) (string, error) {
	return m.Get(ctx, macPath(mac, "subnet-ipv4-cidr-block"))
}

// PrivateIPs returns the private IPv4 addresses assigned to the
// interface with the given hardware address, primary first.
func (m *Client) PrivateIPs(ctx context.Context, mac string) ([]string, error) {
	raw, err := m.Get(ctx, macPath(mac, "local-ipv4s"))
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ips = append(ips, line)
		}
	}
	return ips, nil
}

// sessionGet is Get within an already-open session.
func (m *Client) sessionGet(ctx context.Context, api API, path string) (string, error) {
	v, err := m.conn.get(ctx, api, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func macPath(mac, leaf string) string {
	return fmt.Sprintf("network/interfaces/macs/%s/%s", mac, leaf)
}

// deriveRegion strips the trailing zone letter from an availability
// zone, e.g. us-east-1a becomes us-east-1.
func deriveRegion(az string) (string, error) {
	if len(az) < 2 {
		return "", errors.New(errors.KindEnvironment,
			fmt.Sprintf("unexpected availability zone %q", az), nil, nil)
	}

	last := az[len(az)-1]
	if last < 'a' || last > 'z' {
		return "", errors.New(errors.KindEnvironment,
			fmt.Sprintf("unexpected availability zone %q", az), nil, nil)
	}
	return az[:len(az)-1], nil
}
