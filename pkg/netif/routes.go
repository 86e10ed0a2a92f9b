package netif

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	vnetlink "github.com/vishvananda/netlink"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// routeTableBase offsets per-device routing tables away from the
// kernel's reserved and conventional table numbers.
const routeTableBase = 10000

// RouteTable returns the policy routing table number for an attachment
// slot.
func RouteTable(deviceNumber int) int {
	return routeTableBase + deviceNumber
}

// Configure installs source-policy routing for a secondary device: a
// subnet route and default route in the device's own table, plus one
// source rule per address already bound to the device.
func (m *Manager) Configure(ctx context.Context, ref Ref) error {
	dev, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if dev.Primary {
		return errors.New(errors.KindInvalidParameter,
			"refusing to reconfigure the primary interface", nil, nil)
	}
	if dev.Gateway == "" {
		return errors.New(errors.KindEnvironment,
			fmt.Sprintf("device %s has no known subnet gateway", dev.Name), nil, nil)
	}

	table := RouteTable(dev.DeviceNumber)
	log := m.Logger.WithValues("name", dev.Name, "deviceNumber", dev.DeviceNumber, "table", table)
	log.Info("Configuring source-policy routing")

	gw := net.ParseIP(dev.Gateway)
	if gw == nil {
		return errors.New(errors.KindEnvironment,
			fmt.Sprintf("invalid gateway %s for device %s", dev.Gateway, dev.Name), nil, nil)
	}

	_, subnet, err := net.ParseCIDR(dev.SubnetCIDR)
	if err != nil {
		return errors.New(errors.KindEnvironment,
			fmt.Sprintf("malformed subnet CIDR %s for device %s", dev.SubnetCIDR, dev.Name), nil, err)
	}

	// The subnet route makes the gateway resolvable inside the table.
	if err := vnetlink.RouteReplace(&vnetlink.Route{
		LinkIndex: dev.Index,
		Dst:       subnet,
		Scope:     vnetlink.SCOPE_LINK,
		Table:     table,
	}); err != nil {
		return fmt.Errorf("failed to install subnet route for %s: %v", dev.Name, err)
	}

	_, defaultDst, _ := net.ParseCIDR("0.0.0.0/0")
	if err := vnetlink.RouteReplace(&vnetlink.Route{
		LinkIndex: dev.Index,
		Dst:       defaultDst,
		Gw:        gw,
		Table:     table,
	}); err != nil {
		return fmt.Errorf("failed to install default route for %s: %v", dev.Name, err)
	}

	for _, address := range dev.Addresses {
		if err := m.ensureSourceRule(address, table); err != nil {
			return err
		}
	}

	log.Info("Successfully configured source-policy routing", "addresses", len(dev.Addresses))
	return nil
}

// Deconfigure removes the device's source rules and flushes its
// routing table.
func (m *Manager) Deconfigure(ctx context.Context, ref Ref) error {
	dev, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if dev.Primary {
		return errors.New(errors.KindInvalidParameter,
			"refusing to deconfigure the primary interface", nil, nil)
	}

	table := RouteTable(dev.DeviceNumber)
	log := m.Logger.WithValues("name", dev.Name, "deviceNumber", dev.DeviceNumber, "table", table)
	log.Info("Removing source-policy routing")

	rules, err := vnetlink.RuleList(vnetlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("failed to list routing rules: %v", err)
	}
	for i := range rules {
		if rules[i].Table != table {
			continue
		}
		if err := vnetlink.RuleDel(&rules[i]); err != nil && !notPresent(err) {
			return fmt.Errorf("failed to delete routing rule for table %d: %v", table, err)
		}
	}

	routes, err := vnetlink.RouteListFiltered(vnetlink.FAMILY_V4,
		&vnetlink.Route{Table: table}, vnetlink.RT_FILTER_TABLE)
	if err != nil {
		return fmt.Errorf("failed to list routes in table %d: %v", table, err)
	}
	for i := range routes {
		if err := vnetlink.RouteDel(&routes[i]); err != nil && !notPresent(err) {
			return fmt.Errorf("failed to delete route in table %d: %v", table, err)
		}
	}

	log.Info("Successfully removed source-policy routing")
	return nil
}

// Enable brings the link up, falling back to the ip command when
// netlink is refused.
func (m *Manager) Enable(ctx context.Context, ref Ref) error {
	dev, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	log := m.Logger.WithValues("name", dev.Name)
	link, err := vnetlink.LinkByName(dev.Name)
	if err != nil {
		return fmt.Errorf("failed to get link for interface %s: %v", dev.Name, err)
	}

	if link.Attrs().Flags&net.FlagUp != 0 {
		log.V(1).Info("Interface is already up")
		return nil
	}

	if err := vnetlink.LinkSetUp(link); err != nil {
		log.Info("Failed to bring up interface using netlink, trying ip command", "error", err.Error())
		return m.runIP(ctx, "link", "set", "dev", dev.Name, "up")
	}

	log.Info("Successfully brought up interface")
	return nil
}

// Disable brings the link down. The primary interface is refused since
// taking it down would sever the instance.
func (m *Manager) Disable(ctx context.Context, ref Ref) error {
	dev, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if dev.Primary {
		return errors.New(errors.KindInvalidParameter,
			"refusing to disable the primary interface", nil, nil)
	}

	log := m.Logger.WithValues("name", dev.Name)
	link, err := vnetlink.LinkByName(dev.Name)
	if err != nil {
		return fmt.Errorf("failed to get link for interface %s: %v", dev.Name, err)
	}

	if link.Attrs().Flags&net.FlagUp == 0 {
		log.V(1).Info("Interface is already down")
		return nil
	}

	if err := vnetlink.LinkSetDown(link); err != nil {
		log.Info("Failed to bring down interface using netlink, trying ip command", "error", err.Error())
		return m.runIP(ctx, "link", "set", "dev", dev.Name, "down")
	}

	log.Info("Successfully brought down interface")
	return nil
}

// AddAlias binds a secondary private address to the link. An address
// that is already bound counts as success. The matching source rule is
// installed when the device's routing table is active.
func (m *Manager) AddAlias(ctx context.Context, ref Ref, address string) error {
	dev, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	log := m.Logger.WithValues("name", dev.Name, "address", address)
	log.Info("Adding address alias")

	addr, err := vnetlink.ParseAddr(fmt.Sprintf("%s/%d", address, prefixLen(dev.SubnetCIDR)))
	if err != nil {
		return errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("invalid address %s", address), nil, err)
	}

	link, err := vnetlink.LinkByName(dev.Name)
	if err != nil {
		return fmt.Errorf("failed to get link for interface %s: %v", dev.Name, err)
	}

	if err := vnetlink.AddrAdd(link, addr); err != nil {
		if alreadyExists(err) {
			log.V(1).Info("Address is already bound")
		} else {
			log.Info("Failed to add address using netlink, trying ip command", "error", err.Error())
			if err := m.runIP(ctx, "addr", "add", addr.String(), "dev", dev.Name); err != nil {
				return err
			}
		}
	}

	table := RouteTable(dev.DeviceNumber)
	active, err := m.tableActive(table)
	if err != nil {
		return err
	}
	if active {
		if err := m.ensureSourceRule(address, table); err != nil {
			return err
		}
	}

	log.Info("Successfully added address alias")
	return nil
}

// RemoveAlias unbinds a secondary private address from the link. A
// missing address counts as success.
func (m *Manager) RemoveAlias(ctx context.Context, ref Ref, address string) error {
	dev, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	log := m.Logger.WithValues("name", dev.Name, "address", address)
	log.Info("Removing address alias")

	addr, err := vnetlink.ParseAddr(fmt.Sprintf("%s/%d", address, prefixLen(dev.SubnetCIDR)))
	if err != nil {
		return errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("invalid address %s", address), nil, err)
	}

	link, err := vnetlink.LinkByName(dev.Name)
	if err != nil {
		return fmt.Errorf("failed to get link for interface %s: %v", dev.Name, err)
	}

	if err := vnetlink.AddrDel(link, addr); err != nil {
		if notPresent(err) {
			log.V(1).Info("Address was not bound")
		} else {
			log.Info("Failed to delete address using netlink, trying ip command", "error", err.Error())
			if err := m.runIP(ctx, "addr", "del", addr.String(), "dev", dev.Name); err != nil {
				return err
			}
		}
	}

	if err := m.removeSourceRule(address, RouteTable(dev.DeviceNumber)); err != nil {
		return err
	}

	log.Info("Successfully removed address alias")
	return nil
}

// Test checks gateway reachability from the device with a one-shot
// ping.
func (m *Manager) Test(ctx context.Context, ref Ref) error {
	dev, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if dev.Gateway == "" {
		return errors.New(errors.KindEnvironment,
			fmt.Sprintf("device %s has no known subnet gateway", dev.Name), nil, nil)
	}

	log := m.Logger.WithValues("name", dev.Name, "gateway", dev.Gateway)
	log.Info("Testing gateway reachability")

	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", "2", "-I", dev.Name, dev.Gateway)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.New(errors.KindConnectionFailed,
			fmt.Sprintf("device %s cannot reach gateway %s", dev.Name, dev.Gateway),
			map[string]interface{}{"output": strings.TrimSpace(string(output))}, err)
	}

	log.Info("Gateway is reachable")
	return nil
}

// HasPrivilege reports whether the process may mutate local network
// state.
func (m *Manager) HasPrivilege() bool {
	return os.Geteuid() == 0
}

// ensureSourceRule installs a from-address rule into the table unless
// an equivalent rule exists.
func (m *Manager) ensureSourceRule(address string, table int) error {
	ip := net.ParseIP(address)
	if ip == nil {
		return errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("invalid address %s", address), nil, nil)
	}
	src := &net.IPNet{IP: ip.To4(), Mask: net.CIDRMask(32, 32)}

	rules, err := vnetlink.RuleList(vnetlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("failed to list routing rules: %v", err)
	}
	for _, r := range rules {
		if r.Table == table && r.Src != nil && r.Src.IP.Equal(ip) {
			return nil
		}
	}

	rule := vnetlink.NewRule()
	rule.Src = src
	rule.Table = table
	rule.Priority = table
	if err := vnetlink.RuleAdd(rule); err != nil && !alreadyExists(err) {
		return fmt.Errorf("failed to add routing rule for %s: %v", address, err)
	}
	return nil
}

// removeSourceRule deletes the from-address rule for the table,
// tolerating its absence.
func (m *Manager) removeSourceRule(address string, table int) error {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil
	}

	rules, err := vnetlink.RuleList(vnetlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("failed to list routing rules: %v", err)
	}
	for i := range rules {
		if rules[i].Table != table || rules[i].Src == nil || !rules[i].Src.IP.Equal(ip) {
			continue
		}
		if err := vnetlink.RuleDel(&rules[i]); err != nil && !notPresent(err) {
			return fmt.Errorf("failed to delete routing rule for %s: %v", address, err)
		}
	}
	return nil
}

// tableActive reports whether the routing table holds any routes.
func (m *Manager) tableActive(table int) (bool, error) {
	routes, err := vnetlink.RouteListFiltered(vnetlink.FAMILY_V4,
		&vnetlink.Route{Table: table}, vnetlink.RT_FILTER_TABLE)
	if err != nil {
		return false, fmt.Errorf("failed to list routes in table %d: %v", table, err)
	}
	return len(routes) > 0, nil
}

// runIP shells out to the ip command as a fallback for refused netlink
// operations.
func (m *Manager) runIP(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ip", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip %s failed: %v, output: %s",
			strings.Join(args, " "), err, string(output))
	}
	m.Logger.V(1).Info("Applied change with ip command", "args", strings.Join(args, " "))
	return nil
}

func prefixLen(cidr string) int {
	if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
		ones, _ := ipnet.Mask.Size()
		return ones
	}
	return 32
}

func alreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "file exists")
}

func notPresent(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cannot assign requested address") ||
		strings.Contains(msg, "no such process") ||
		strings.Contains(msg, "no such file or directory") ||
		strings.Contains(msg, "no such address") ||
		strings.Contains(msg, "no such device")
}
