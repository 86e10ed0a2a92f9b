package lifecycle

import (
	"github.com/johnlam90/aws-eni-manager/pkg/aws"
)

// CreateOptions controls Create.
type CreateOptions struct {
	// SubnetID is the target subnet. Empty means the subnet of the
	// instance's primary interface.
	SubnetID string
	// SecurityGroupIDs are applied to the new interface. Empty means
	// the subnet's default group.
	SecurityGroupIDs []string
	// Description is the provider-side description.
	Description string
	// Tags are applied at creation, under the ownership tags.
	Tags map[string]string
}

// CreateResult reports a created interface.
type CreateResult struct {
	InterfaceID string `json:"interfaceID"`
	SubnetID    string `json:"subnetID"`
	// Interface is the described payload after the interface became
	// available.
	Interface *aws.NetworkInterface `json:"interface,omitempty"`
}

// AttachOptions controls Attach. Device slot 0 always holds the
// primary interface, so a zero DeviceNumber means "pick the first free
// slot".
type AttachOptions struct {
	// InterfaceID names the interface to attach. Required.
	InterfaceID string
	// DeviceNumber is the explicit attachment slot. Zero means the
	// first free slot.
	DeviceNumber int
	// Name is the expected local link name for the slot. When given
	// together with DeviceNumber both must agree.
	Name string
	// NoConfigure skips installing source-policy routing.
	NoConfigure bool
	// NoEnable skips bringing the link up.
	NoEnable bool
}

// AttachResult reports an attached interface.
type AttachResult struct {
	InterfaceID  string                `json:"interfaceID"`
	AttachmentID string                `json:"attachmentID"`
	DeviceNumber int                   `json:"deviceNumber"`
	Name         string                `json:"name"`
	Interface    *aws.NetworkInterface `json:"interface,omitempty"`
}

// DetachOptions controls Detach. At least one of InterfaceID, Name or
// DeviceNumber must identify the device; every supplied field must
// agree with the resolved device. Slot 0 is never detachable, so a
// zero DeviceNumber means unset.
type DetachOptions struct {
	InterfaceID  string
	Name         string
	DeviceNumber int
	// Delete overrides the ownership-based deletion decision. Nil
	// means "delete when the interface carries our ownership tag".
	Delete *bool
	// Block waits for the detachment to converge even when nothing
	// will be deleted afterwards.
	Block bool
}

// DetachResult reports a detached interface.
type DetachResult struct {
	InterfaceID  string `json:"interfaceID"`
	DeviceNumber int    `json:"deviceNumber"`
	Name         string `json:"name"`
	// Deleted reports whether the interface was deleted afterwards.
	Deleted bool `json:"deleted"`
	// Interface is the last described payload, nil when the interface
	// disappeared during the wait.
	Interface *aws.NetworkInterface `json:"interface,omitempty"`
}

// CleanOptions controls Clean.
type CleanOptions struct {
	// Filter narrows the sweep to one interface id, one subnet, or one
	// availability zone.
	Filter string
	// Unsafe disables the ownership and age protections and deletes
	// every available interface in the VPC that matches the filter.
	Unsafe bool
}

// CleanResult reports a cleanup sweep.
type CleanResult struct {
	// Deleted lists the interface ids that were deleted.
	Deleted []string `json:"deleted"`
	// Skipped lists the interface ids that were protected or failed to
	// delete.
	Skipped []string `json:"skipped"`
}

// AssignOptions controls Assign.
type AssignOptions struct {
	// InterfaceID, Name and DeviceNumber identify the target device;
	// at least one is required and all supplied fields must agree.
	InterfaceID  string
	Name         string
	DeviceNumber int
	// Address is the explicit secondary address. Empty lets the
	// provider pick one from the subnet.
	Address string
	// NoConfigure skips binding the address to the local link.
	NoConfigure bool
}

// AssignResult reports an assigned secondary address.
type AssignResult struct {
	Address      string                `json:"address"`
	InterfaceID  string                `json:"interfaceID"`
	DeviceNumber int                   `json:"deviceNumber"`
	Name         string                `json:"name"`
	Interface    *aws.NetworkInterface `json:"interface,omitempty"`
}

// UnassignOptions controls Unassign.
type UnassignOptions struct {
	InterfaceID  string
	Name         string
	DeviceNumber int
	// Address is the secondary address to remove. Required; the
	// primary address is refused.
	Address string
}

// UnassignResult reports a removed secondary address.
type UnassignResult struct {
	Address      string `json:"address"`
	InterfaceID  string `json:"interfaceID"`
	DeviceNumber int    `json:"deviceNumber"`
	Name         string `json:"name"`
}

// AssociateOptions controls Associate.
type AssociateOptions struct {
	// InterfaceID, Name and DeviceNumber identify the target device.
	// All empty means the primary interface at slot 0.
	InterfaceID  string
	Name         string
	DeviceNumber int
	// PrivateIP is the private address to bind the elastic address to.
	// Empty means the device's primary address.
	PrivateIP string
	// Address selects the elastic address: an allocation id, an
	// association id, a public ip, or a private ip inside the VPC.
	// Empty allocates a fresh address.
	Address string
}

// AssociateResult reports an associated elastic address.
type AssociateResult struct {
	PublicIP      string `json:"publicIP"`
	AllocationID  string `json:"allocationID"`
	AssociationID string `json:"associationID"`
	PrivateIP     string `json:"privateIP"`
	InterfaceID   string `json:"interfaceID"`
	DeviceNumber  int    `json:"deviceNumber"`
	Name          string `json:"name"`
	// NewAllocation reports that the elastic address was allocated by
	// this call.
	NewAllocation bool `json:"newAllocation"`
}

// DissociateOptions controls Dissociate.
type DissociateOptions struct {
	// Address selects the elastic address. Required.
	Address string
	// InterfaceID, Name and DeviceNumber optionally pin the expected
	// device; a mismatch with the live association is an error.
	InterfaceID  string
	Name         string
	DeviceNumber int
	// Release releases the allocation after dissociating.
	Release bool
}

// DissociateResult reports a dissociated elastic address.
type DissociateResult struct {
	PublicIP      string `json:"publicIP"`
	AllocationID  string `json:"allocationID"`
	AssociationID string `json:"associationID"`
	Released      bool   `json:"released"`
}

// AllocateResult reports a freshly allocated elastic address.
type AllocateResult struct {
	PublicIP     string `json:"publicIP"`
	AllocationID string `json:"allocationID"`
}

// ReleaseOptions controls Release.
type ReleaseOptions struct {
	// Address selects the elastic address. Required; an address that
	// is still associated is refused.
	Address string
}

// ReleaseResult reports a released elastic address.
type ReleaseResult struct {
	PublicIP     string `json:"publicIP"`
	AllocationID string `json:"allocationID"`
}
