package netif

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// MockLocalInterface is an in-memory LocalInterface for tests. It
// mirrors the resolution rules and error kinds of the real manager so
// callers branch the same way against either.
type MockLocalInterface struct {
	mu sync.Mutex

	// Devices holds the simulated links keyed by interface ID.
	Devices map[string]*Device

	// ConfiguredDevices and EnabledDevices track per-device state
	// changes applied through the mock.
	ConfiguredDevices map[string]bool
	EnabledDevices    map[string]bool

	// UnreachableDevices marks devices whose gateway ping should fail.
	UnreachableDevices map[string]bool

	// Privileged is what HasPrivilege reports.
	Privileged bool

	// FailureScenarios marks operations that should fail every call.
	// FailureErrors overrides the error returned for an operation.
	// FailuresRemaining fails an operation a fixed number of times
	// before letting it succeed.
	FailureScenarios  map[string]bool
	FailureErrors     map[string]error
	FailuresRemaining map[string]int

	// CallCounts records how many times each operation ran.
	CallCounts map[string]int
}

// NewMockLocalInterface returns an empty privileged mock.
func NewMockLocalInterface() *MockLocalInterface {
	return &MockLocalInterface{
		Devices:            make(map[string]*Device),
		ConfiguredDevices:  make(map[string]bool),
		EnabledDevices:     make(map[string]bool),
		UnreachableDevices: make(map[string]bool),
		Privileged:         true,
		FailureScenarios:   make(map[string]bool),
		FailureErrors:      make(map[string]error),
		FailuresRemaining:  make(map[string]int),
		CallCounts:         make(map[string]int),
	}
}

// AddDevice registers a simulated link. The device starts down and
// unconfigured; the primary device starts up.
func (m *MockLocalInterface) AddDevice(dev Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := dev
	d.Addresses = append([]string(nil), dev.Addresses...)
	m.Devices[d.InterfaceID] = &d
	if d.Primary {
		m.EnabledDevices[d.InterfaceID] = true
	}
}

// RemoveDevice drops a simulated link and its state.
func (m *MockLocalInterface) RemoveDevice(interfaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Devices, interfaceID)
	delete(m.ConfiguredDevices, interfaceID)
	delete(m.EnabledDevices, interfaceID)
	delete(m.UnreachableDevices, interfaceID)
}

// SetFailureScenario makes an operation fail until cleared.
func (m *MockLocalInterface) SetFailureScenario(operation string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailureScenarios[operation] = fail
}

// SetFailureError sets the error an operation fails with.
func (m *MockLocalInterface) SetFailureError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailureErrors[operation] = err
}

// SetFailuresBeforeSuccess makes the next count calls of an operation
// fail, then lets it succeed.
func (m *MockLocalInterface) SetFailuresBeforeSuccess(operation string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailuresRemaining[operation] = count
}

// Calls returns how many times an operation ran.
func (m *MockLocalInterface) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[operation]
}

// Configured reports whether a device currently has routing installed.
func (m *MockLocalInterface) Configured(interfaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConfiguredDevices[interfaceID]
}

// Enabled reports whether a device is currently up.
func (m *MockLocalInterface) Enabled(interfaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EnabledDevices[interfaceID]
}

func (m *MockLocalInterface) call(operation string) error {
	m.CallCounts[operation]++
	if remaining, ok := m.FailuresRemaining[operation]; ok && remaining > 0 {
		m.FailuresRemaining[operation] = remaining - 1
		return m.failureFor(operation)
	}
	if m.FailureScenarios[operation] {
		return m.failureFor(operation)
	}
	return nil
}

func (m *MockLocalInterface) failureFor(operation string) error {
	if err, ok := m.FailureErrors[operation]; ok && err != nil {
		return err
	}
	return errors.New(errors.KindEnvironment,
		fmt.Sprintf("simulated %s failure", operation), nil, nil)
}

func (m *MockLocalInterface) resolve(ref Ref) (*Device, error) {
	if ref.Empty() {
		return nil, errors.New(errors.KindInvalidParameter,
			"no device selector given", nil, nil)
	}
	if ref.HasID() {
		if dev, ok := m.Devices[ref.InterfaceID]; ok {
			return dev, nil
		}
		return nil, errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("interface %s is not attached to this instance", ref.InterfaceID), nil, nil)
	}
	if ref.HasName() {
		for _, dev := range m.Devices {
			if dev.Name == ref.Name {
				return dev, nil
			}
		}
		return nil, errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("no local device named %s", ref.Name), nil, nil)
	}
	for _, dev := range m.Devices {
		if dev.DeviceNumber == ref.DeviceNumber {
			return dev, nil
		}
	}
	return nil, errors.New(errors.KindUnknownInterface,
		fmt.Sprintf("no device at slot %d", ref.DeviceNumber), nil, nil)
}

// Resolve implements LocalInterface.
func (m *MockLocalInterface) Resolve(ctx context.Context, ref Ref) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Resolve"); err != nil {
		return nil, err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}
	d := *dev
	d.Addresses = append([]string(nil), dev.Addresses...)
	return &d, nil
}

// Exists implements LocalInterface.
func (m *MockLocalInterface) Exists(ctx context.Context, ref Ref) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Exists"); err != nil {
		return false, err
	}
	if _, err := m.resolve(ref); err != nil {
		if errors.Is(err, errors.KindUnknownInterface) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FreeDeviceNumber implements LocalInterface.
func (m *MockLocalInterface) FreeDeviceNumber(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FreeDeviceNumber"); err != nil {
		return 0, err
	}
	used := make([]int, 0, len(m.Devices))
	for _, dev := range m.Devices {
		used = append(used, dev.DeviceNumber)
	}
	sort.Ints(used)
	free := 0
	for _, n := range used {
		if n == free {
			free++
		}
	}
	return free, nil
}

// PrimaryHardwareAddr implements LocalInterface.
func (m *MockLocalInterface) PrimaryHardwareAddr(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("PrimaryHardwareAddr"); err != nil {
		return "", err
	}
	for _, dev := range m.Devices {
		if dev.Primary {
			return dev.MAC, nil
		}
	}
	return "", errors.New(errors.KindEnvironment,
		"cannot determine the primary interface: no default route found", nil, nil)
}

// Configure implements LocalInterface.
func (m *MockLocalInterface) Configure(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Configure"); err != nil {
		return err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return err
	}
	if dev.Primary {
		return errors.New(errors.KindInvalidParameter,
			"refusing to reconfigure the primary interface", nil, nil)
	}
	m.ConfiguredDevices[dev.InterfaceID] = true
	return nil
}

// Deconfigure implements LocalInterface.
func (m *MockLocalInterface) Deconfigure(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Deconfigure"); err != nil {
		return err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return err
	}
	if dev.Primary {
		return errors.New(errors.KindInvalidParameter,
			"refusing to deconfigure the primary interface", nil, nil)
	}
	delete(m.ConfiguredDevices, dev.InterfaceID)
	return nil
}

// Enable implements LocalInterface.
func (m *MockLocalInterface) Enable(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Enable"); err != nil {
		return err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return err
	}
	m.EnabledDevices[dev.InterfaceID] = true
	return nil
}

// Disable implements LocalInterface.
func (m *MockLocalInterface) Disable(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Disable"); err != nil {
		return err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return err
	}
	if dev.Primary {
		return errors.New(errors.KindInvalidParameter,
			"refusing to disable the primary interface", nil, nil)
	}
	delete(m.EnabledDevices, dev.InterfaceID)
	return nil
}

// AddAlias implements LocalInterface. Re-adding a bound address counts
// as success.
func (m *MockLocalInterface) AddAlias(ctx context.Context, ref Ref, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("AddAlias"); err != nil {
		return err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return err
	}
	for _, existing := range dev.Addresses {
		if existing == address {
			return nil
		}
	}
	dev.Addresses = append(dev.Addresses, address)
	return nil
}

// RemoveAlias implements LocalInterface. A missing address counts as
// success.
func (m *MockLocalInterface) RemoveAlias(ctx context.Context, ref Ref, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("RemoveAlias"); err != nil {
		return err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return err
	}
	kept := dev.Addresses[:0]
	for _, existing := range dev.Addresses {
		if existing != address {
			kept = append(kept, existing)
		}
	}
	dev.Addresses = kept
	return nil
}

// Test implements LocalInterface.
func (m *MockLocalInterface) Test(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Test"); err != nil {
		return err
	}
	dev, err := m.resolve(ref)
	if err != nil {
		return err
	}
	if m.UnreachableDevices[dev.InterfaceID] {
		return errors.New(errors.KindConnectionFailed,
			fmt.Sprintf("device %s cannot reach gateway %s", dev.Name, dev.Gateway), nil, nil)
	}
	return nil
}

// HasPrivilege implements LocalInterface.
func (m *MockLocalInterface) HasPrivilege() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Privileged
}
