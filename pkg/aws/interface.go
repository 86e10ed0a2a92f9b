package aws

import (
	"context"
)

// InterfaceManager defines the mutating operations on network interfaces
type InterfaceManager interface {
	// CreateInterface creates a new network interface in the given subnet
	CreateInterface(ctx context.Context, subnetID string, securityGroupIDs []string, description string, tags map[string]string) (*NetworkInterface, error)

	// AttachInterface attaches a network interface to an EC2 instance at
	// the given device index and returns the attachment id
	AttachInterface(ctx context.Context, interfaceID, instanceID string, deviceIndex int) (string, error)

	// DetachInterface detaches a network interface by attachment id
	DetachInterface(ctx context.Context, attachmentID string, force bool) error

	// DeleteInterface deletes a network interface
	DeleteInterface(ctx context.Context, interfaceID string) error

	// CreateTags applies tags to an existing resource
	CreateTags(ctx context.Context, resourceID string, tags map[string]string) error
}

// InterfaceDescriber defines the read operations on network interfaces
type InterfaceDescriber interface {
	// DescribeInterface describes a network interface
	// Returns nil, nil if the interface doesn't exist
	DescribeInterface(ctx context.Context, interfaceID string) (*NetworkInterface, error)

	// DescribeInterfaces lists network interfaces matching the filters
	DescribeInterfaces(ctx context.Context, filters []Filter) ([]NetworkInterface, error)
}

// AddressManager defines the operations on secondary private addresses
type AddressManager interface {
	// AssignPrivateAddresses assigns secondary private addresses to an
	// interface: the explicit addresses when given, otherwise count
	// provider-picked ones. Returns the assigned addresses.
	AssignPrivateAddresses(ctx context.Context, interfaceID string, addresses []string, count int) ([]string, error)

	// UnassignPrivateAddresses removes secondary private addresses from
	// an interface
	UnassignPrivateAddresses(ctx context.Context, interfaceID string, addresses []string) error
}

// ElasticAddressManager defines the operations on elastic IP addresses
type ElasticAddressManager interface {
	// AllocateAddress allocates a new elastic IP in the VPC domain
	AllocateAddress(ctx context.Context, tags map[string]string) (*Address, error)

	// ReleaseAddress releases an elastic IP by allocation id
	ReleaseAddress(ctx context.Context, allocationID string) error

	// AssociateAddress binds an elastic IP to an interface's private
	// address and returns the association id
	AssociateAddress(ctx context.Context, allocationID, interfaceID, privateIP string) (string, error)

	// DisassociateAddress unbinds an elastic IP by association id
	DisassociateAddress(ctx context.Context, associationID string) error

	// DescribeAddresses lists elastic IPs matching the filters
	DescribeAddresses(ctx context.Context, filters []Filter) ([]Address, error)
}

// CloudClient defines the combined interface for all EC2 operations
// This is a facade that combines all the specialized interfaces
type CloudClient interface {
	InterfaceManager
	InterfaceDescriber
	AddressManager
	ElasticAddressManager
}
