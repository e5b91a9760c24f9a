// Package identity derives globally unique, sortable memory identifiers from
// (device, user, timestamp, sequence).
//
// A memory ID has the form
//
//	{device}_{user}_{timestamp}_{sequence}
//
// where device is the first 8 hex characters of the device UUID, timestamp is
// a zero-padded millisecond timestamp, and sequence is a zero-padded
// per-millisecond counter. Zero padding keeps IDs for the same device/user
// pair lexicographically sortable by creation time.
package identity

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// devicePrefixLen is how many characters of the device UUID appear in IDs.
const devicePrefixLen = 8

// Device identifies the machine originating memories.
type Device struct {
	// UUID is the full device identifier.
	UUID string
}

// NewDevice generates a device with a fresh random UUID.
func NewDevice() *Device {
	return &Device{UUID: uuid.NewString()}
}

// NewDeviceWithUUID wraps an existing device UUID, generating one if empty.
func NewDeviceWithUUID(deviceUUID string) *Device {
	if deviceUUID == "" {
		return NewDevice()
	}
	return &Device{UUID: deviceUUID}
}

// Prefix returns the short device identifier used inside memory IDs.
func (d *Device) Prefix() string {
	compact := strings.ReplaceAll(d.UUID, "-", "")
	if len(compact) > devicePrefixLen {
		return compact[:devicePrefixLen]
	}
	return compact
}

// Generator produces memory IDs for one device. The timestamp and sequence
// components come from a snowflake node, which guarantees uniqueness across
// concurrent callers without external coordination.
type Generator struct {
	device *Device
	node   *snowflake.Node
}

// NewGenerator creates an ID generator for the device.
//
// nodeID distinguishes generators sharing a device (0-1023); single-process
// deployments pass 0.
func NewGenerator(device *Device, nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	return &Generator{device: device, node: node}, nil
}

// Device returns the generator's device.
func (g *Generator) Device() *Device {
	return g.device
}

// Generate returns a new memory ID for the user. IDs are unique and, for a
// fixed device/user pair, sort lexicographically by creation time.
func (g *Generator) Generate(userID string) string {
	id := g.node.Generate()
	return fmt.Sprintf("%s_%s_%013d_%05d", g.device.Prefix(), userID, id.Time(), id.Step())
}

// ParsedID is the decomposition of a memory ID.
type ParsedID struct {
	Device    string
	User      string
	Timestamp string
	Sequence  string
}

// Parse splits a memory ID into its components. User IDs may themselves
// contain underscores; the device, timestamp, and sequence components cannot,
// so the user portion is everything between the first and the last two
// separators.
func Parse(id string) (*ParsedID, error) {
	parts := strings.Split(id, "_")
	if len(parts) < 4 {
		return nil, fmt.Errorf("identity: malformed memory ID %q", id)
	}
	return &ParsedID{
		Device:    parts[0],
		User:      strings.Join(parts[1:len(parts)-2], "_"),
		Timestamp: parts[len(parts)-2],
		Sequence:  parts[len(parts)-1],
	}, nil
}
