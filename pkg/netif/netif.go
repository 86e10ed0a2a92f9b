// Package netif manages the OS-level side of attached network
// interfaces: resolving provider device slots to local links,
// source-policy routing for secondary interfaces, address aliases, and
// link state. Cloud-side lifecycle lives in pkg/aws; this package only
// touches the local machine.
package netif

import (
	"context"
	"fmt"
)

// UnsetDeviceNumber marks a Ref's device number as not supplied.
const UnsetDeviceNumber = -1

// Ref identifies a local device by interface id, name, or device
// number. Unset string fields are empty; an unset device number is
// UnsetDeviceNumber, so build refs with the constructors rather than a
// bare literal.
type Ref struct {
	InterfaceID  string
	Name         string
	DeviceNumber int
}

// ByID refers to a device by its provider interface id.
func ByID(interfaceID string) Ref {
	return Ref{InterfaceID: interfaceID, DeviceNumber: UnsetDeviceNumber}
}

// ByName refers to a device by its local link name.
func ByName(name string) Ref {
	return Ref{Name: name, DeviceNumber: UnsetDeviceNumber}
}

// ByDeviceNumber refers to a device by its provider attachment slot.
func ByDeviceNumber(n int) Ref {
	return Ref{DeviceNumber: n}
}

// EmptyRef returns a ref with no selector set.
func EmptyRef() Ref {
	return Ref{DeviceNumber: UnsetDeviceNumber}
}

// HasID reports whether an interface id selector is set.
func (r Ref) HasID() bool { return r.InterfaceID != "" }

// HasName reports whether a name selector is set.
func (r Ref) HasName() bool { return r.Name != "" }

// HasDeviceNumber reports whether a device number selector is set.
func (r Ref) HasDeviceNumber() bool { return r.DeviceNumber != UnsetDeviceNumber }

// Empty reports whether no selector is set.
func (r Ref) Empty() bool {
	return !r.HasID() && !r.HasName() && !r.HasDeviceNumber()
}

func (r Ref) String() string {
	switch {
	case r.HasID():
		return r.InterfaceID
	case r.HasName():
		return r.Name
	case r.HasDeviceNumber():
		return fmt.Sprintf("device %d", r.DeviceNumber)
	}
	return "<empty>"
}

// Device is the resolved local view of an attached interface. Values
// are a snapshot; nothing is cached across operations.
type Device struct {
	Name         string
	Index        int
	DeviceNumber int
	InterfaceID  string
	SubnetID     string
	SubnetCIDR   string
	MAC          string
	Gateway      string
	Primary      bool
	Addresses    []string
}

// LocalInterface is the OS-side surface the lifecycle manager drives.
type LocalInterface interface {
	// Resolve maps a ref to the local device, consulting the metadata
	// service for slot and subnet details
	Resolve(ctx context.Context, ref Ref) (*Device, error)

	// Exists reports whether the referenced device is present locally
	Exists(ctx context.Context, ref Ref) (bool, error)

	// FreeDeviceNumber returns the lowest unoccupied attachment slot
	FreeDeviceNumber(ctx context.Context) (int, error)

	// PrimaryHardwareAddr returns the MAC of the instance's primary
	// interface
	PrimaryHardwareAddr(ctx context.Context) (string, error)

	// Configure installs source-policy routing for a secondary device
	Configure(ctx context.Context, ref Ref) error

	// Deconfigure removes the device's routing rules and table
	Deconfigure(ctx context.Context, ref Ref) error

	// Enable brings the link up
	Enable(ctx context.Context, ref Ref) error

	// Disable brings the link down
	Disable(ctx context.Context, ref Ref) error

	// AddAlias binds a secondary private address to the link
	AddAlias(ctx context.Context, ref Ref, address string) error

	// RemoveAlias unbinds a secondary private address from the link
	RemoveAlias(ctx context.Context, ref Ref, address string) error

	// Test checks that the device can reach its subnet gateway
	Test(ctx context.Context, ref Ref) error

	// HasPrivilege reports whether the process may mutate local
	// network state
	HasPrivilege() bool
}
