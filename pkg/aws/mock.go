package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/util"
)

// MockCloudClient implements CloudClient against in-memory state for
// testing. State changes are synchronous: a created interface is
// immediately available and an attached one immediately in-use.
// Errors carry the same taxonomy kinds the real client would produce
// so callers that branch on classification behave identically in
// tests.
type MockCloudClient struct {
	// Mocked resources
	Interfaces         map[string]*NetworkInterface // eniID -> interface
	Attachments        map[string]string            // attachmentID -> eniID
	Addresses          map[string]*Address          // allocationID -> elastic IP
	Associations       map[string]string            // associationID -> allocationID
	Subnets            map[string]string            // subnetID -> CIDR
	SubnetAZs          map[string]string            // subnetID -> availability zone
	InstanceInterfaces map[string][]string          // instanceID -> attached ENI IDs

	// VpcID is stamped on every interface the mock creates
	VpcID string
	// DefaultAZ is used for subnets registered without an explicit zone
	DefaultAZ string

	// FailureScenarios makes the named operation fail persistently
	FailureScenarios map[string]bool
	// FailureErrors overrides the injected error per operation; when
	// unset, a KindServiceError error is returned
	FailureErrors map[string]error
	// FailuresRemaining makes the named operation fail n times before
	// succeeding again
	FailuresRemaining map[string]int

	// CallCounts records how often each operation ran, including
	// injected failures
	CallCounts map[string]int

	CreationWaitTime   time.Duration
	AttachmentWaitTime time.Duration
	DetachmentWaitTime time.Duration
	DeletionWaitTime   time.Duration
	DescribeWaitTime   time.Duration

	// OnAttach and OnDetach, when set, observe successful attach and
	// detach calls so a linked local mock can track what the metadata
	// service would report.
	OnAttach func(interfaceID, instanceID string, deviceIndex int)
	OnDetach func(interfaceID string)

	seq   int
	mutex sync.RWMutex
}

// NewMockCloudClient creates a mock cloud client with empty state.
func NewMockCloudClient() *MockCloudClient {
	return &MockCloudClient{
		Interfaces:         make(map[string]*NetworkInterface),
		Attachments:        make(map[string]string),
		Addresses:          make(map[string]*Address),
		Associations:       make(map[string]string),
		Subnets:            make(map[string]string),
		SubnetAZs:          make(map[string]string),
		InstanceInterfaces: make(map[string][]string),
		VpcID:              "vpc-0mock00000000001",
		DefaultAZ:          "us-east-1a",
		FailureScenarios:   make(map[string]bool),
		FailureErrors:      make(map[string]error),
		FailuresRemaining:  make(map[string]int),
		CallCounts:         make(map[string]int),
	}
}

// SetFailureScenario sets whether a specific operation should fail.
func (m *MockCloudClient) SetFailureScenario(operation string, shouldFail bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.FailureScenarios[operation] = shouldFail
}

// SetFailureError sets the error returned for an operation's injected
// failures.
func (m *MockCloudClient) SetFailureError(operation string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.FailureErrors[operation] = err
}

// SetFailuresBeforeSuccess makes an operation fail n times and then
// recover.
func (m *MockCloudClient) SetFailuresBeforeSuccess(operation string, n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.FailuresRemaining[operation] = n
}

// Calls reports how many times the named operation ran.
func (m *MockCloudClient) Calls(operation string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.CallCounts[operation]
}

// AddSubnet registers a subnet in the default availability zone.
func (m *MockCloudClient) AddSubnet(subnetID, cidr string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Subnets[subnetID] = cidr
}

// AddSubnetWithAZ registers a subnet in an explicit availability zone.
func (m *MockCloudClient) AddSubnetWithAZ(subnetID, cidr, az string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Subnets[subnetID] = cidr
	m.SubnetAZs[subnetID] = az
}

// AddInterface seeds an existing interface, for tests that start from
// pre-existing cloud state.
func (m *MockCloudClient) AddInterface(eni *NetworkInterface) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Interfaces[eni.InterfaceID] = eni
	if eni.Attachment != nil {
		m.Attachments[eni.Attachment.AttachmentID] = eni.InterfaceID
		instanceID := eni.Attachment.InstanceID
		m.InstanceInterfaces[instanceID] = append(m.InstanceInterfaces[instanceID], eni.InterfaceID)
	}
}

// AddAddress seeds an existing elastic IP.
func (m *MockCloudClient) AddAddress(addr *Address) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Addresses[addr.AllocationID] = addr
	if addr.AssociationID != "" {
		m.Associations[addr.AssociationID] = addr.AllocationID
	}
}

// call records the operation and returns the injected failure, if any.
// Callers must hold the write lock.
func (m *MockCloudClient) call(operation string) error {
	m.CallCounts[operation]++

	if n := m.FailuresRemaining[operation]; n > 0 {
		m.FailuresRemaining[operation] = n - 1
		return m.failureFor(operation)
	}
	if m.FailureScenarios[operation] {
		return m.failureFor(operation)
	}
	return nil
}

func (m *MockCloudClient) failureFor(operation string) error {
	if err := m.FailureErrors[operation]; err != nil {
		return err
	}
	return errors.New(errors.KindServiceError,
		fmt.Sprintf("simulated %s failure", operation), nil, nil)
}

// nextID generates a deterministic resource id with the given prefix.
// Callers must hold the write lock.
func (m *MockCloudClient) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%017x", prefix, m.seq)
}

// CreateInterface creates a network interface in the mock environment.
// The interface is immediately available with a primary address drawn
// from the subnet CIDR.
func (m *MockCloudClient) CreateInterface(ctx context.Context, subnetID string, securityGroupIDs []string, description string, tags map[string]string) (*NetworkInterface, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.CreationWaitTime > 0 {
		time.Sleep(m.CreationWaitTime)
	}
	if err := m.call("CreateInterface"); err != nil {
		return nil, err
	}

	cidr, ok := m.Subnets[subnetID]
	if !ok {
		return nil, errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("subnet %s not found", subnetID), nil, nil)
	}

	eniID := m.nextID("eni-")
	primary, err := util.NthAddress(cidr, 10+m.seq)
	if err != nil {
		return nil, errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("subnet %s exhausted", subnetID), nil, err)
	}

	az := m.SubnetAZs[subnetID]
	if az == "" {
		az = m.DefaultAZ
	}

	eni := &NetworkInterface{
		InterfaceID:      eniID,
		Status:           InterfaceStatusAvailable,
		SubnetID:         subnetID,
		VpcID:            m.VpcID,
		AvailabilityZone: az,
		MacAddress:       fmt.Sprintf("02:00:00:00:%02x:%02x", m.seq/256, m.seq%256),
		Description:      description,
		PrivateIPs:       []PrivateIP{{Address: primary, Primary: true}},
		SecurityGroups:   append([]string(nil), securityGroupIDs...),
		Tags:             util.MergeMaps(nil, tags),
	}
	m.Interfaces[eniID] = eni

	return copyInterface(eni), nil
}

// AttachInterface attaches an interface to an instance in the mock
// environment.
func (m *MockCloudClient) AttachInterface(ctx context.Context, interfaceID, instanceID string, deviceIndex int) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.AttachmentWaitTime > 0 {
		time.Sleep(m.AttachmentWaitTime)
	}
	if err := m.call("AttachInterface"); err != nil {
		return "", err
	}

	eni, ok := m.Interfaces[interfaceID]
	if !ok {
		return "", errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("network interface %s not found", interfaceID), nil, nil)
	}
	if eni.Status == InterfaceStatusInUse {
		return "", errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("network interface %s is already attached", interfaceID), nil, nil)
	}
	for _, otherID := range m.InstanceInterfaces[instanceID] {
		other := m.Interfaces[otherID]
		if other != nil && other.Attachment != nil && other.Attachment.DeviceIndex == deviceIndex {
			return "", errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("device index %d is already in use on %s", deviceIndex, instanceID), nil, nil)
		}
	}

	attachmentID := m.nextID("eni-attach-")
	eni.Status = InterfaceStatusInUse
	eni.Attachment = &Attachment{
		AttachmentID: attachmentID,
		InstanceID:   instanceID,
		DeviceIndex:  deviceIndex,
		Status:       "attached",
	}

	m.Attachments[attachmentID] = interfaceID
	m.InstanceInterfaces[instanceID] = append(m.InstanceInterfaces[instanceID], interfaceID)

	if m.OnAttach != nil {
		m.OnAttach(interfaceID, instanceID, deviceIndex)
	}

	return attachmentID, nil
}

// DetachInterface detaches an interface in the mock environment. A
// missing attachment counts as success, matching the real client.
func (m *MockCloudClient) DetachInterface(ctx context.Context, attachmentID string, force bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.DetachmentWaitTime > 0 {
		time.Sleep(m.DetachmentWaitTime)
	}
	if err := m.call("DetachInterface"); err != nil {
		return err
	}

	eniID, ok := m.Attachments[attachmentID]
	if !ok {
		return nil
	}

	eni, ok := m.Interfaces[eniID]
	if !ok {
		return nil
	}

	var instanceID string
	if eni.Attachment != nil {
		instanceID = eni.Attachment.InstanceID
	}

	eni.Status = InterfaceStatusAvailable
	eni.Attachment = nil
	delete(m.Attachments, attachmentID)

	if instanceID != "" {
		m.InstanceInterfaces[instanceID] = util.RemoveString(m.InstanceInterfaces[instanceID], eniID)
	}

	if m.OnDetach != nil {
		m.OnDetach(eniID)
	}

	return nil
}

// DeleteInterface deletes an interface in the mock environment. A
// missing interface counts as success, matching the real client.
func (m *MockCloudClient) DeleteInterface(ctx context.Context, interfaceID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.DeletionWaitTime > 0 {
		time.Sleep(m.DeletionWaitTime)
	}
	if err := m.call("DeleteInterface"); err != nil {
		return err
	}

	eni, ok := m.Interfaces[interfaceID]
	if !ok {
		return nil
	}
	if eni.Status == InterfaceStatusInUse {
		return errors.New(errors.KindServiceError,
			fmt.Sprintf("network interface %s is currently in use", interfaceID), nil, nil)
	}

	delete(m.Interfaces, interfaceID)
	return nil
}

// CreateTags merges tags onto an interface in the mock environment.
func (m *MockCloudClient) CreateTags(ctx context.Context, resourceID string, tags map[string]string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.call("CreateTags"); err != nil {
		return err
	}

	if eni, ok := m.Interfaces[resourceID]; ok {
		eni.Tags = util.MergeMaps(eni.Tags, tags)
		return nil
	}
	if _, ok := m.Addresses[resourceID]; ok {
		return nil
	}
	return errors.New(errors.KindUnknownInterface,
		fmt.Sprintf("resource %s not found", resourceID), nil, nil)
}

// DescribeInterface describes an interface in the mock environment.
// Returns nil, nil if the interface doesn't exist.
func (m *MockCloudClient) DescribeInterface(ctx context.Context, interfaceID string) (*NetworkInterface, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.DescribeWaitTime > 0 {
		time.Sleep(m.DescribeWaitTime)
	}
	if err := m.call("DescribeInterface"); err != nil {
		return nil, err
	}

	eni, ok := m.Interfaces[interfaceID]
	if !ok {
		return nil, nil
	}
	return copyInterface(eni), nil
}

// DescribeInterfaces lists interfaces matching the filters. Values
// within one filter are alternatives; separate filters must all match.
func (m *MockCloudClient) DescribeInterfaces(ctx context.Context, filters []Filter) ([]NetworkInterface, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.DescribeWaitTime > 0 {
		time.Sleep(m.DescribeWaitTime)
	}
	if err := m.call("DescribeInterfaces"); err != nil {
		return nil, err
	}

	var matches []NetworkInterface
	for _, eni := range m.Interfaces {
		if matchesInterfaceFilters(eni, filters) {
			matches = append(matches, *copyInterface(eni))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].InterfaceID < matches[j].InterfaceID
	})
	return matches, nil
}

// AssignPrivateAddresses assigns secondary addresses in the mock
// environment. Provider-picked addresses are drawn from the subnet
// CIDR.
func (m *MockCloudClient) AssignPrivateAddresses(ctx context.Context, interfaceID string, addresses []string, count int) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.call("AssignPrivateAddresses"); err != nil {
		return nil, err
	}

	eni, ok := m.Interfaces[interfaceID]
	if !ok {
		return nil, errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("network interface %s not found", interfaceID), nil, nil)
	}

	assigned := addresses
	if len(assigned) == 0 {
		cidr := m.Subnets[eni.SubnetID]
		for i := 0; i < count; i++ {
			m.seq++
			addr, err := util.NthAddress(cidr, 100+m.seq)
			if err != nil {
				return nil, errors.New(errors.KindInvalidParameter,
					fmt.Sprintf("subnet %s exhausted", eni.SubnetID), nil, err)
			}
			assigned = append(assigned, addr)
		}
	}

	for _, addr := range assigned {
		if eni.HasIP(addr) {
			return nil, errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("address %s is already assigned to %s", addr, interfaceID), nil, nil)
		}
	}
	for _, addr := range assigned {
		eni.PrivateIPs = append(eni.PrivateIPs, PrivateIP{Address: addr})
	}

	return assigned, nil
}

// UnassignPrivateAddresses removes secondary addresses in the mock
// environment. The primary address is rejected the way the provider
// would reject it.
func (m *MockCloudClient) UnassignPrivateAddresses(ctx context.Context, interfaceID string, addresses []string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.call("UnassignPrivateAddresses"); err != nil {
		return err
	}

	eni, ok := m.Interfaces[interfaceID]
	if !ok {
		return errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("network interface %s not found", interfaceID), nil, nil)
	}

	for _, addr := range addresses {
		found := false
		for _, ip := range eni.PrivateIPs {
			if ip.Address != addr {
				continue
			}
			if ip.Primary {
				return errors.New(errors.KindInvalidParameter,
					fmt.Sprintf("address %s is the primary address of %s", addr, interfaceID), nil, nil)
			}
			found = true
		}
		if !found {
			return errors.New(errors.KindInvalidParameter,
				fmt.Sprintf("address %s is not assigned to %s", addr, interfaceID), nil, nil)
		}
	}

	for _, addr := range addresses {
		kept := eni.PrivateIPs[:0]
		for _, ip := range eni.PrivateIPs {
			if ip.Address != addr {
				kept = append(kept, ip)
			}
		}
		eni.PrivateIPs = kept
	}

	return nil
}

// AllocateAddress allocates an elastic IP in the mock environment.
func (m *MockCloudClient) AllocateAddress(ctx context.Context, tags map[string]string) (*Address, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.call("AllocateAddress"); err != nil {
		return nil, err
	}

	m.seq++
	addr := &Address{
		PublicIP:     fmt.Sprintf("52.95.%d.%d", (m.seq/250)%250, m.seq%250+1),
		AllocationID: m.nextID("eipalloc-"),
	}
	m.Addresses[addr.AllocationID] = addr

	return copyAddress(addr), nil
}

// ReleaseAddress releases an elastic IP in the mock environment. An
// associated address cannot be released.
func (m *MockCloudClient) ReleaseAddress(ctx context.Context, allocationID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.call("ReleaseAddress"); err != nil {
		return err
	}

	addr, ok := m.Addresses[allocationID]
	if !ok {
		return errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("allocation %s not found", allocationID), nil, nil)
	}
	if addr.AssociationID != "" {
		return errors.New(errors.KindServiceError,
			fmt.Sprintf("address %s is currently associated", addr.PublicIP), nil, nil)
	}

	delete(m.Addresses, allocationID)
	return nil
}

// AssociateAddress binds an elastic IP to an interface address in the
// mock environment. Reassociation is rejected, matching the real
// client.
func (m *MockCloudClient) AssociateAddress(ctx context.Context, allocationID, interfaceID, privateIP string) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.call("AssociateAddress"); err != nil {
		return "", err
	}

	addr, ok := m.Addresses[allocationID]
	if !ok {
		return "", errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("allocation %s not found", allocationID), nil, nil)
	}
	if addr.AssociationID != "" {
		return "", errors.New(errors.KindServiceError,
			fmt.Sprintf("address %s is already associated", addr.PublicIP), nil, nil)
	}

	eni, ok := m.Interfaces[interfaceID]
	if !ok {
		return "", errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("network interface %s not found", interfaceID), nil, nil)
	}
	if !eni.HasIP(privateIP) {
		return "", errors.New(errors.KindInvalidParameter,
			fmt.Sprintf("address %s is not assigned to %s", privateIP, interfaceID), nil, nil)
	}

	associationID := m.nextID("eipassoc-")
	addr.AssociationID = associationID
	addr.NetworkInterfaceID = interfaceID
	addr.PrivateIP = privateIP
	m.Associations[associationID] = allocationID

	return associationID, nil
}

// DisassociateAddress unbinds an elastic IP in the mock environment.
func (m *MockCloudClient) DisassociateAddress(ctx context.Context, associationID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.call("DisassociateAddress"); err != nil {
		return err
	}

	allocationID, ok := m.Associations[associationID]
	if !ok {
		return errors.New(errors.KindUnknownInterface,
			fmt.Sprintf("association %s not found", associationID), nil, nil)
	}

	if addr, ok := m.Addresses[allocationID]; ok {
		addr.AssociationID = ""
		addr.NetworkInterfaceID = ""
		addr.PrivateIP = ""
	}
	delete(m.Associations, associationID)

	return nil
}

// DescribeAddresses lists elastic IPs matching the filters.
func (m *MockCloudClient) DescribeAddresses(ctx context.Context, filters []Filter) ([]Address, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.DescribeWaitTime > 0 {
		time.Sleep(m.DescribeWaitTime)
	}
	if err := m.call("DescribeAddresses"); err != nil {
		return nil, err
	}

	var matches []Address
	for _, addr := range m.Addresses {
		if matchesAddressFilters(addr, filters) {
			matches = append(matches, *copyAddress(addr))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].AllocationID < matches[j].AllocationID
	})
	return matches, nil
}

func matchesInterfaceFilters(eni *NetworkInterface, filters []Filter) bool {
	for _, f := range filters {
		if !matchInterfaceFilter(eni, f) {
			return false
		}
	}
	return true
}

func matchInterfaceFilter(eni *NetworkInterface, f Filter) bool {
	if strings.HasPrefix(f.Name, "tag:") {
		v, ok := eni.Tag(strings.TrimPrefix(f.Name, "tag:"))
		return ok && util.ContainsString(f.Values, v)
	}

	switch f.Name {
	case "network-interface-id":
		return util.ContainsString(f.Values, eni.InterfaceID)
	case "status":
		return util.ContainsString(f.Values, string(eni.Status))
	case "subnet-id":
		return util.ContainsString(f.Values, eni.SubnetID)
	case "vpc-id":
		return util.ContainsString(f.Values, eni.VpcID)
	case "availability-zone":
		return util.ContainsString(f.Values, eni.AvailabilityZone)
	case "attachment.instance-id":
		return eni.Attachment != nil && util.ContainsString(f.Values, eni.Attachment.InstanceID)
	default:
		return false
	}
}

func matchesAddressFilters(addr *Address, filters []Filter) bool {
	for _, f := range filters {
		if !matchAddressFilter(addr, f) {
			return false
		}
	}
	return true
}

func matchAddressFilter(addr *Address, f Filter) bool {
	switch f.Name {
	case "allocation-id":
		return util.ContainsString(f.Values, addr.AllocationID)
	case "association-id":
		return util.ContainsString(f.Values, addr.AssociationID)
	case "public-ip":
		return util.ContainsString(f.Values, addr.PublicIP)
	case "private-ip-address":
		return util.ContainsString(f.Values, addr.PrivateIP)
	case "network-interface-id":
		return util.ContainsString(f.Values, addr.NetworkInterfaceID)
	default:
		return false
	}
}

// copyInterface returns a deep copy so callers cannot mutate mock
// state through returned values.
func copyInterface(eni *NetworkInterface) *NetworkInterface {
	out := *eni
	out.PrivateIPs = append([]PrivateIP(nil), eni.PrivateIPs...)
	out.SecurityGroups = append([]string(nil), eni.SecurityGroups...)
	out.Tags = util.MergeMaps(nil, eni.Tags)
	if eni.Attachment != nil {
		attachment := *eni.Attachment
		out.Attachment = &attachment
	}
	return &out
}

func copyAddress(addr *Address) *Address {
	out := *addr
	return &out
}
