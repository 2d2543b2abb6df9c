// ABOUTME: Typed views of the per-asset and per-checkout metadata files
// ABOUTME: Node info lives in an asset directory, checkout info in a working copy

package metadata

import (
	"sort"
	"time"
)

// Metadata file names
const (
	NodeInfoFile     = ".nodeinfo"
	CheckoutInfoFile = ".checkoutinfo"
)

// TimeLayout is the timestamp format used in every metadata file
const TimeLayout = "Mon, 02 Jan 2006 03:04:05 PM"

// Section names as written to disk
const (
	SectionNode       = "Node"
	SectionVersioning = "Versioning"
	SectionComments   = "Comments"
	SectionCheckout   = "Checkout"
)

// NodeInfo is the content of an asset's .nodeinfo file
type NodeInfo struct {
	Type string // Node:type, set by whoever creates concrete nodes

	LatestVersion    int
	VersionsToKeep   int // 0 or negative keeps every version
	Locked           bool
	LastCheckoutUser string
	LastCheckoutTime time.Time
	LastCheckinUser  string
	LastCheckinTime  time.Time

	// Comments maps version number to free text ("v001" on disk)
	Comments map[int]string

	// Extra holds keys this package does not interpret, by lowercase section
	Extra map[string]map[string]string
}

// NewNodeInfo returns the metadata of a freshly registered asset
func NewNodeInfo(user string, keep int, now time.Time) *NodeInfo {
	return &NodeInfo{
		LatestVersion:    0,
		VersionsToKeep:   keep,
		Locked:           false,
		LastCheckoutUser: user,
		LastCheckoutTime: now,
		LastCheckinUser:  user,
		LastCheckinTime:  now,
		Comments:         map[int]string{0: "New"},
	}
}

// Comment returns the comment recorded for a version
func (n *NodeInfo) Comment(version int) (string, bool) {
	c, ok := n.Comments[version]
	return c, ok
}

// SetComment records a comment for a version
func (n *NodeInfo) SetComment(version int, text string) {
	if n.Comments == nil {
		n.Comments = make(map[int]string)
	}
	n.Comments[version] = text
}

// DropComment forgets the comment of a version
func (n *NodeInfo) DropComment(version int) {
	delete(n.Comments, version)
}

// CommentVersions returns the versions that carry a comment, ascending
func (n *NodeInfo) CommentVersions() []int {
	versions := make([]int, 0, len(n.Comments))
	for v := range n.Comments {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// Clone returns a deep copy
func (n *NodeInfo) Clone() *NodeInfo {
	c := *n
	c.Comments = make(map[int]string, len(n.Comments))
	for k, v := range n.Comments {
		c.Comments[k] = v
	}
	c.Extra = cloneExtra(n.Extra)
	return &c
}

// CheckoutInfo is the content of a working copy's .checkoutinfo file
type CheckoutInfo struct {
	CheckedOutFrom string // asset path, lookup only
	CheckoutTime   time.Time
	Version        int
	LockedByMe     bool

	// CheckoutUser is the login that created the working copy. Files written
	// by older tools do not carry it.
	CheckoutUser string

	// RestoredFrom is the version whose content seeded a rollback, -1 otherwise
	RestoredFrom int

	Extra map[string]map[string]string
}

// HoldsLock reports whether the working copy described by co is the current
// holder of the asset lock described by node.
func HoldsLock(node *NodeInfo, co *CheckoutInfo) bool {
	if !co.LockedByMe || !node.Locked {
		return false
	}
	if !node.LastCheckoutTime.Equal(co.CheckoutTime) {
		return false
	}
	return co.CheckoutUser == "" || co.CheckoutUser == node.LastCheckoutUser
}

func cloneExtra(extra map[string]map[string]string) map[string]map[string]string {
	if extra == nil {
		return nil
	}
	out := make(map[string]map[string]string, len(extra))
	for section, keys := range extra {
		m := make(map[string]string, len(keys))
		for k, v := range keys {
			m[k] = v
		}
		out[section] = m
	}
	return out
}
