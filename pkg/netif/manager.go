package netif

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	vnetlink "github.com/vishvananda/netlink"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/metadata"
	"github.com/johnlam90/aws-eni-manager/pkg/util"
)

// Manager implements LocalInterface with netlink, falling back to the
// ip command where netlink is refused. Device slot and subnet details
// come from the metadata service.
type Manager struct {
	meta *metadata.Client
	// Logger is used for structured logging
	Logger logr.Logger
}

// NewManager creates a local interface manager over the given metadata
// client.
func NewManager(meta *metadata.Client, logger logr.Logger) *Manager {
	return &Manager{
		meta:   meta,
		Logger: logger.WithName("netif"),
	}
}

// slot is one provider attachment as the metadata service reports it.
type slot struct {
	mac          string
	deviceNumber int
	interfaceID  string
}

// slots lists the instance's attachments from the metadata service.
func (m *Manager) slots(ctx context.Context) ([]slot, error) {
	macs, err := m.meta.Macs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]slot, 0, len(macs))
	for _, mac := range macs {
		deviceNumber, err := m.meta.DeviceNumber(ctx, mac)
		if err != nil {
			return nil, err
		}
		interfaceID, err := m.meta.InterfaceID(ctx, mac)
		if err != nil {
			return nil, err
		}
		out = append(out, slot{mac: mac, deviceNumber: deviceNumber, interfaceID: interfaceID})
	}
	return out, nil
}

// Resolve maps a ref to the local device. Selector priority is
// interface id, then name, then device number; cross-checking extra
// selectors against the result is the caller's concern.
func (m *Manager) Resolve(ctx context.Context, ref Ref) (*Device, error) {
	if ref.Empty() {
		return nil, errors.New(errors.KindInvalidParameter, "no device selector given", nil, nil)
	}

	log := m.Logger.WithValues("ref", ref.String())
	log.V(1).Info("Resolving local device")

	switch {
	case ref.HasID():
		return m.resolveByID(ctx, ref.InterfaceID)
	case ref.HasName():
		return m.resolveByName(ctx, ref.Name)
	default:
		return m.resolveByDeviceNumber(ctx, ref.DeviceNumber)
	}
}

func (m *Manager) resolveByID(ctx context.Context, interfaceID string) (*Device, error) {
	slots, err := m.slots(ctx)
	if err != nil {
		return nil, err
	}

	for _, s := range slots {
		if s.interfaceID != interfaceID {
			continue
		}
		link, found, err := m.findLinkByMAC(s.mac)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.New(errors.KindUnknownInterface,
				fmt.Sprintf("interface %s has no local device", interfaceID),
				map[string]interface{}{"mac": s.mac}, nil)
		}
		return m.deviceFromSlot(ctx, link, s)
	}

	return nil, errors.New(errors.KindUnknownInterface,
		fmt.Sprintf("interface %s is not attached to this instance", interfaceID), nil, nil)
}

func (m *Manager) resolveByName(ctx context.Context, name string) (*Device, error) {
	link, err := vnetlink.LinkByName(name)
	if err != nil {
		if isLinkNotFound(err) {
			return nil, errors.New(errors.KindUnknownInterface,
				fmt.Sprintf("no local device named %s", name), nil, err)
		}
		return nil, fmt.Errorf("failed to get link for interface %s: %v", name, err)
	}

	mac := link.Attrs().HardwareAddr.String()
	slots, err := m.slots(ctx)
	if err == nil {
		for _, s := range slots {
			if strings.EqualFold(s.mac, mac) {
				return m.deviceFromSlot(ctx, link, s)
			}
		}
	} else if !errors.Is(err, errors.KindConnectionFailed) {
		return nil, err
	}

	// The metadata service doesn't know this device (or is unreachable);
	// fall back to the name-derived device number.
	m.Logger.V(1).Info("Falling back to name-derived device number", "name", name)
	deviceNumber, inferErr := DeviceNumberForName(name)
	if inferErr != nil {
		deviceNumber = UnsetDeviceNumber
	}
	return &Device{
		Name:         name,
		Index:        link.Attrs().Index,
		DeviceNumber: deviceNumber,
		MAC:          mac,
		Primary:      deviceNumber == 0,
	}, nil
}

func (m *Manager) resolveByDeviceNumber(ctx context.Context, deviceNumber int) (*Device, error) {
	slots, err := m.slots(ctx)
	if err == nil {
		for _, s := range slots {
			if s.deviceNumber != deviceNumber {
				continue
			}
			link, found, err := m.findLinkByMAC(s.mac)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, errors.New(errors.KindUnknownInterface,
					fmt.Sprintf("device %d has no local link", deviceNumber),
					map[string]interface{}{"mac": s.mac}, nil)
			}
			return m.deviceFromSlot(ctx, link, s)
		}
	} else if !errors.Is(err, errors.KindConnectionFailed) {
		return nil, err
	}

	// Fall back to conventional names for the slot.
	for _, name := range namesForDeviceNumber(deviceNumber) {
		link, err := vnetlink.LinkByName(name)
		if err != nil {
			continue
		}
		return &Device{
			Name:         name,
			Index:        link.Attrs().Index,
			DeviceNumber: deviceNumber,
			MAC:          link.Attrs().HardwareAddr.String(),
			Primary:      deviceNumber == 0,
		}, nil
	}

	return nil, errors.New(errors.KindUnknownInterface,
		fmt.Sprintf("no device at slot %d", deviceNumber), nil, nil)
}

// deviceFromSlot fills the device view from the slot's mac-scoped
// metadata paths.
func (m *Manager) deviceFromSlot(ctx context.Context, link vnetlink.Link, s slot) (*Device, error) {
	subnetID, err := m.meta.SubnetID(ctx, s.mac)
	if err != nil {
		return nil, err
	}
	subnetCIDR, err := m.meta.SubnetCIDR(ctx, s.mac)
	if err != nil {
		return nil, err
	}
	addresses, err := m.meta.PrivateIPs(ctx, s.mac)
	if err != nil {
		return nil, err
	}

	gateway, err := util.NthAddress(subnetCIDR, 1)
	if err != nil {
		return nil, errors.New(errors.KindEnvironment,
			fmt.Sprintf("malformed subnet CIDR %s for device %d", subnetCIDR, s.deviceNumber), nil, err)
	}

	return &Device{
		Name:         link.Attrs().Name,
		Index:        link.Attrs().Index,
		DeviceNumber: s.deviceNumber,
		InterfaceID:  s.interfaceID,
		SubnetID:     subnetID,
		SubnetCIDR:   subnetCIDR,
		MAC:          s.mac,
		Gateway:      gateway,
		Primary:      s.deviceNumber == 0,
		Addresses:    addresses,
	}, nil
}

// Exists reports whether the referenced device is present locally. For
// id and device-number refs the check rides the metadata path, so
// transient metadata failures surface as KindConnectionFailed.
func (m *Manager) Exists(ctx context.Context, ref Ref) (bool, error) {
	if ref.Empty() {
		return false, errors.New(errors.KindInvalidParameter, "no device selector given", nil, nil)
	}

	if ref.HasName() && !ref.HasID() {
		_, err := vnetlink.LinkByName(ref.Name)
		if err != nil {
			if isLinkNotFound(err) {
				return false, nil
			}
			return false, fmt.Errorf("failed to get link for interface %s: %v", ref.Name, err)
		}
		return true, nil
	}

	slots, err := m.slots(ctx)
	if err != nil {
		return false, err
	}

	for _, s := range slots {
		if ref.HasID() && s.interfaceID != ref.InterfaceID {
			continue
		}
		if !ref.HasID() && s.deviceNumber != ref.DeviceNumber {
			continue
		}
		_, found, err := m.findLinkByMAC(s.mac)
		if err != nil {
			return false, err
		}
		return found, nil
	}
	return false, nil
}

// FreeDeviceNumber returns the lowest attachment slot the metadata
// service reports as unoccupied.
func (m *Manager) FreeDeviceNumber(ctx context.Context) (int, error) {
	slots, err := m.slots(ctx)
	if err != nil {
		return 0, err
	}

	used := make([]int, 0, len(slots))
	for _, s := range slots {
		used = append(used, s.deviceNumber)
	}
	return firstFreeSlot(used), nil
}

// PrimaryHardwareAddr returns the MAC of the link carrying the default
// route.
func (m *Manager) PrimaryHardwareAddr(ctx context.Context) (string, error) {
	routes, err := vnetlink.RouteList(nil, vnetlink.FAMILY_V4)
	if err != nil {
		return "", errors.New(errors.KindEnvironment, "failed to list routes", nil, err)
	}

	for _, route := range routes {
		if route.Gw == nil {
			continue
		}
		if route.Dst != nil {
			if ones, _ := route.Dst.Mask.Size(); ones != 0 {
				continue
			}
		}
		link, err := vnetlink.LinkByIndex(route.LinkIndex)
		if err != nil {
			continue
		}
		mac := link.Attrs().HardwareAddr.String()
		if mac != "" {
			m.Logger.V(1).Info("Resolved primary interface", "name", link.Attrs().Name, "mac", mac)
			return mac, nil
		}
	}

	return "", errors.New(errors.KindEnvironment,
		"cannot determine the primary interface: no default route found", nil, nil)
}

// findLinkByMAC scans local links for the given hardware address.
func (m *Manager) findLinkByMAC(mac string) (vnetlink.Link, bool, error) {
	links, err := vnetlink.LinkList()
	if err != nil {
		return nil, false, fmt.Errorf("failed to list network links: %v", err)
	}

	for _, link := range links {
		if strings.EqualFold(link.Attrs().HardwareAddr.String(), mac) {
			return link, true, nil
		}
	}
	return nil, false, nil
}

func isLinkNotFound(err error) bool {
	_, ok := err.(vnetlink.LinkNotFoundError)
	return ok
}

// DeviceNumberForName infers the attachment slot from a conventional
// link name.
func DeviceNumberForName(name string) (int, error) {
	if strings.HasPrefix(name, "eth") {
		if n, err := strconv.Atoi(strings.TrimPrefix(name, "eth")); err == nil {
			return n, nil
		}
	}
	// ens names start at ens5 for device 1 on nitro instances
	if strings.HasPrefix(name, "ens") {
		if n, err := strconv.Atoi(strings.TrimPrefix(name, "ens")); err == nil {
			return n - 4, nil
		}
	}
	return 0, fmt.Errorf("cannot infer a device number from %s", name)
}

// namesForDeviceNumber lists the conventional link names for a slot.
func namesForDeviceNumber(n int) []string {
	return []string{fmt.Sprintf("eth%d", n), fmt.Sprintf("ens%d", n+4)}
}

// firstFreeSlot returns the smallest device number not in used.
func firstFreeSlot(used []int) int {
	taken := make(map[int]bool, len(used))
	for _, n := range used {
		taken[n] = true
	}
	for n := 0; ; n++ {
		if !taken[n] {
			return n
		}
	}
}
