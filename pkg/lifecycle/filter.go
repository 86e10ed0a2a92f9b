package lifecycle

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/johnlam90/aws-eni-manager/pkg/aws"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/netif"
	"github.com/johnlam90/aws-eni-manager/pkg/util"
)

// cleanFilter is the parsed form of Clean's filter argument. Exactly
// one field is set.
type cleanFilter struct {
	interfaceID      string
	subnetID         string
	availabilityZone string
}

// parseCleanFilter validates Clean's filter argument before any cloud
// call. An empty value means no filter.
func parseCleanFilter(value, region string) (*cleanFilter, error) {
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "eni-") {
		return &cleanFilter{interfaceID: value}, nil
	}
	if strings.HasPrefix(value, "subnet-") {
		return &cleanFilter{subnetID: value}, nil
	}
	// An availability zone is the current region plus one zone letter.
	if region != "" && strings.HasPrefix(value, region) && len(value) == len(region)+1 {
		letter := value[len(value)-1]
		if letter >= 'a' && letter <= 'z' {
			return &cleanFilter{availabilityZone: value}, nil
		}
	}
	return nil, errors.New(errors.KindInvalidParameter,
		fmt.Sprintf("filter %q is not an interface id, subnet id, or availability zone", value), nil, nil)
}

// toFilter maps the parsed filter onto the provider's describe filter.
func (f *cleanFilter) toFilter() aws.Filter {
	switch {
	case f.interfaceID != "":
		return aws.Filter{Name: "network-interface-id", Values: []string{f.interfaceID}}
	case f.subnetID != "":
		return aws.Filter{Name: "subnet-id", Values: []string{f.subnetID}}
	default:
		return aws.Filter{Name: "availability-zone", Values: []string{f.availabilityZone}}
	}
}

// parseAddressSelector maps an elastic address argument onto the
// provider filter that finds it: an allocation id, an association id,
// a private address inside the VPC, or a public address.
func parseAddressSelector(value, vpcCIDR string) (aws.Filter, error) {
	switch {
	case strings.HasPrefix(value, "eipalloc-"):
		return aws.Filter{Name: "allocation-id", Values: []string{value}}, nil
	case strings.HasPrefix(value, "eipassoc-"):
		return aws.Filter{Name: "association-id", Values: []string{value}}, nil
	case net.ParseIP(value) != nil:
		if util.CIDRContains(vpcCIDR, value) {
			return aws.Filter{Name: "private-ip-address", Values: []string{value}}, nil
		}
		return aws.Filter{Name: "public-ip", Values: []string{value}}, nil
	}
	return aws.Filter{}, errors.New(errors.KindInvalidParameter,
		fmt.Sprintf("%q is not an allocation id, association id, or IP address", value), nil, nil)
}

// lookupAddress resolves an elastic address argument to the live
// address record. The VPC CIDR is only fetched when the argument is an
// IP, to tell private from public addresses.
func (m *Manager) lookupAddress(ctx context.Context, cloud aws.CloudClient, value string) (*aws.Address, error) {
	var vpcCIDR string
	if net.ParseIP(value) != nil {
		identity, err := m.identity(ctx)
		if err != nil {
			return nil, err
		}
		vpcCIDR = identity.VpcCIDR
	}

	filter, err := parseAddressSelector(value, vpcCIDR)
	if err != nil {
		return nil, err
	}

	addresses, err := cloud.DescribeAddresses(ctx, []aws.Filter{filter})
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("no elastic address matches %s", value), nil, nil)
	}
	return &addresses[0], nil
}

// deviceRef builds a netif ref from option fields. Slot 0 always holds
// the primary interface, so a zero device number means unset.
func deviceRef(interfaceID, name string, deviceNumber int) netif.Ref {
	ref := netif.EmptyRef()
	ref.InterfaceID = interfaceID
	ref.Name = name
	if deviceNumber > 0 {
		ref.DeviceNumber = deviceNumber
	}
	return ref
}

// crossCheckDevice verifies that every explicitly supplied identifying
// field agrees with the resolved device.
func crossCheckDevice(dev *netif.Device, interfaceID, name string, deviceNumber int) error {
	if interfaceID != "" && dev.InterfaceID != interfaceID {
		return errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("interface %s does not match device %s, which carries %s",
				interfaceID, dev.Name, dev.InterfaceID), nil, nil)
	}
	if name != "" && dev.Name != name {
		return errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("name %s does not match device %s at slot %d",
				name, dev.Name, dev.DeviceNumber), nil, nil)
	}
	if deviceNumber > 0 && dev.DeviceNumber != deviceNumber {
		return errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("device number %d does not match device %s at slot %d",
				deviceNumber, dev.Name, dev.DeviceNumber), nil, nil)
	}
	return nil
}
