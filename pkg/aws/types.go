package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// InterfaceStatus represents the provider-side status of a network interface
type InterfaceStatus string

const (
	// InterfaceStatusAvailable represents the "available" status
	InterfaceStatusAvailable InterfaceStatus = "available"
	// InterfaceStatusInUse represents the "in-use" status
	InterfaceStatusInUse InterfaceStatus = "in-use"
	// InterfaceStatusAttaching represents the "attaching" status
	InterfaceStatusAttaching InterfaceStatus = "attaching"
	// InterfaceStatusDetaching represents the "detaching" status
	InterfaceStatusDetaching InterfaceStatus = "detaching"
)

// Attachment represents a network interface attachment
type Attachment struct {
	AttachmentID        string `json:"attachmentID"`
	InstanceID          string `json:"instanceID"`
	DeviceIndex         int    `json:"deviceIndex"`
	DeleteOnTermination bool   `json:"deleteOnTermination"`
	Status              string `json:"status"`
}

// PrivateIP is one private IPv4 address bound to a network interface
type PrivateIP struct {
	Address string `json:"address"`
	Primary bool   `json:"primary"`
}

// NetworkInterface represents a network interface
type NetworkInterface struct {
	InterfaceID      string            `json:"interfaceID"`
	Status           InterfaceStatus   `json:"status"`
	SubnetID         string            `json:"subnetID"`
	VpcID            string            `json:"vpcID"`
	AvailabilityZone string            `json:"availabilityZone,omitempty"`
	MacAddress       string            `json:"macAddress,omitempty"`
	Description      string            `json:"description,omitempty"`
	PrivateIPs       []PrivateIP       `json:"privateIPs,omitempty"`
	SecurityGroups   []string          `json:"securityGroups,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	Attachment       *Attachment       `json:"attachment,omitempty"`

	// Raw is the unconverted provider payload.
	Raw types.NetworkInterface `json:"-"`
}

// PrimaryIP returns the interface's primary private address, or "" when
// the provider payload carried none.
func (n *NetworkInterface) PrimaryIP() string {
	for _, ip := range n.PrivateIPs {
		if ip.Primary {
			return ip.Address
		}
	}
	return ""
}

// HasIP reports whether addr is bound to the interface.
func (n *NetworkInterface) HasIP(addr string) bool {
	for _, ip := range n.PrivateIPs {
		if ip.Address == addr {
			return true
		}
	}
	return false
}

// Tag returns the value of the named tag.
func (n *NetworkInterface) Tag(key string) (string, bool) {
	v, ok := n.Tags[key]
	return v, ok
}

// Address represents an elastic IP address
type Address struct {
	PublicIP           string `json:"publicIP"`
	AllocationID       string `json:"allocationID"`
	AssociationID      string `json:"associationID,omitempty"`
	NetworkInterfaceID string `json:"networkInterfaceID,omitempty"`
	PrivateIP          string `json:"privateIP,omitempty"`

	// Raw is the unconverted provider payload.
	Raw types.Address `json:"-"`
}

// Associated reports whether the address is bound to an interface.
func (a *Address) Associated() bool {
	return a.AssociationID != ""
}

// Filter narrows a describe call, mirroring the provider's name/values
// filter shape.
type Filter struct {
	Name   string
	Values []string
}

func toEC2Filters(filters []Filter) []types.Filter {
	if len(filters) == 0 {
		return nil
	}

	out := make([]types.Filter, 0, len(filters))
	for _, f := range filters {
		out = append(out, types.Filter{
			Name:   aws.String(f.Name),
			Values: f.Values,
		})
	}
	return out
}

// convertInterface maps the provider payload to the internal type.
func convertInterface(ni types.NetworkInterface) *NetworkInterface {
	out := &NetworkInterface{
		InterfaceID:      aws.ToString(ni.NetworkInterfaceId),
		Status:           InterfaceStatus(ni.Status),
		SubnetID:         aws.ToString(ni.SubnetId),
		VpcID:            aws.ToString(ni.VpcId),
		AvailabilityZone: aws.ToString(ni.AvailabilityZone),
		MacAddress:       aws.ToString(ni.MacAddress),
		Description:      aws.ToString(ni.Description),
		Raw:              ni,
	}

	for _, ip := range ni.PrivateIpAddresses {
		out.PrivateIPs = append(out.PrivateIPs, PrivateIP{
			Address: aws.ToString(ip.PrivateIpAddress),
			Primary: aws.ToBool(ip.Primary),
		})
	}
	// Some responses carry only the top-level primary address.
	if len(out.PrivateIPs) == 0 && ni.PrivateIpAddress != nil {
		out.PrivateIPs = append(out.PrivateIPs, PrivateIP{
			Address: aws.ToString(ni.PrivateIpAddress),
			Primary: true,
		})
	}

	for _, g := range ni.Groups {
		out.SecurityGroups = append(out.SecurityGroups, aws.ToString(g.GroupId))
	}

	if len(ni.TagSet) > 0 {
		out.Tags = make(map[string]string, len(ni.TagSet))
		for _, t := range ni.TagSet {
			out.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}

	// An interface can carry a stale Attachment block while already being
	// "available" again; treat that as detached.
	if ni.Attachment != nil &&
		ni.Status != types.NetworkInterfaceStatusAvailable &&
		ni.Attachment.Status != types.AttachmentStatusDetached {
		out.Attachment = &Attachment{
			AttachmentID:        aws.ToString(ni.Attachment.AttachmentId),
			InstanceID:          aws.ToString(ni.Attachment.InstanceId),
			DeviceIndex:         int(aws.ToInt32(ni.Attachment.DeviceIndex)),
			DeleteOnTermination: aws.ToBool(ni.Attachment.DeleteOnTermination),
			Status:              string(ni.Attachment.Status),
		}
	}

	return out
}

// convertAddress maps the provider payload to the internal type.
func convertAddress(addr types.Address) Address {
	return Address{
		PublicIP:           aws.ToString(addr.PublicIp),
		AllocationID:       aws.ToString(addr.AllocationId),
		AssociationID:      aws.ToString(addr.AssociationId),
		NetworkInterfaceID: aws.ToString(addr.NetworkInterfaceId),
		PrivateIP:          aws.ToString(addr.PrivateIpAddress),
		Raw:                addr,
	}
}
