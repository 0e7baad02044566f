// Package datamodel provides the foundational interfaces and types for the
// Matter Data Model (Spec Chapter 7).
//
// This package defines the hierarchy of Node → Endpoint → Cluster and the
// interfaces for reading/writing attributes, invoking commands, and handling
// events. It sits between the Interaction Model (pkg/im) and cluster
// implementations (pkg/clusters/*).
//
// Spec References:
//   - Section 7.4: Element hierarchy
//   - Section 7.8: Node
//   - Section 7.9: Endpoint
//   - Section 7.10: Cluster
//   - Section 7.11: Command
//   - Section 7.12: Attribute
//   - Section 7.13: Global Elements
//   - Section 7.14: Event
package datamodel

import "strings"

// Privilege defines access privilege levels for ACL checks.
// Spec: Section 7.6
type Privilege int

const (
	PrivilegeUnknown Privilege = iota
	// PrivilegeView allows read access to attributes and events. Spec 7.6.6.
	PrivilegeView
	// PrivilegeProxyView allows proxy read access (for proxy devices).
	PrivilegeProxyView
	// PrivilegeOperate allows read/write/invoke access. Spec 7.6.7.
	PrivilegeOperate
	// PrivilegeManage allows configuration and management operations. Spec 7.6.8.
	PrivilegeManage
	// PrivilegeAdminister allows full administrative control. Spec 7.6.9.
	PrivilegeAdminister
)

var privilegeNames = [...]string{
	PrivilegeUnknown:    "Unknown",
	PrivilegeView:       "View",
	PrivilegeProxyView:  "ProxyView",
	PrivilegeOperate:    "Operate",
	PrivilegeManage:     "Manage",
	PrivilegeAdminister: "Administer",
}

func (p Privilege) String() string {
	if p < 0 || int(p) >= len(privilegeNames) {
		return "Unknown"
	}
	return privilegeNames[p]
}

// IsValid returns true if the privilege is a defined value.
func (p Privilege) IsValid() bool {
	return p >= PrivilegeView && p <= PrivilegeAdminister
}

// AttributeQuality defines quality flags for attributes.
// Spec: Section 7.7, 7.12
type AttributeQuality uint32

const (
	// AttrQualityChangesOmitted indicates fast-changing data that won't be
	// reported in subscriptions (C quality). Spec 7.7.1.
	AttrQualityChangesOmitted AttributeQuality = 1 << iota
	// AttrQualityFixed indicates read-only data that rarely changes (F quality). Spec 7.7.2.
	AttrQualityFixed
	// AttrQualitySingleton indicates a cluster singleton on the node (I quality). Spec 7.7.3.
	AttrQualitySingleton
	// AttrQualityDiagnostics indicates verbose diagnostics data (K quality). Spec 7.7.4.
	AttrQualityDiagnostics
	// AttrQualityNonVolatile indicates persistent data across restarts (N quality). Spec 7.7.6.
	AttrQualityNonVolatile
	// AttrQualityReportable indicates the attribute supports reporting (P quality). Spec 7.7.7.
	AttrQualityReportable
	// AttrQualityQuieter indicates fluctuating data where some changes are
	// meaningless to report (Q quality). Spec 7.7.8.
	AttrQualityQuieter
	// AttrQualityScene indicates the attribute is part of a scene (S quality). Spec 7.7.9.
	AttrQualityScene
	// AttrQualityAtomic indicates the attribute requires atomic writes (T quality). Spec 7.7.11.
	AttrQualityAtomic
	// AttrQualityNullable indicates the data type is nullable (X quality). Spec 7.7.10.
	AttrQualityNullable
	// AttrQualityList indicates this attribute is a list type.
	AttrQualityList
	// AttrQualityFabricScoped indicates fabric-scoped access (F access modifier). Spec 7.6.4.
	AttrQualityFabricScoped
	// AttrQualityFabricSensitive indicates fabric-sensitive access (S access modifier). Spec 7.6.5.
	AttrQualityFabricSensitive
	// AttrQualityTimed indicates timed interaction required for writes (T access modifier). Spec 7.6.10.
	AttrQualityTimed
)

// attrQualityLetters maps each flag bit to its spec letter/tag, in the same
// order the quality constants are declared, so String() is a single loop
// instead of fourteen repeated "if flag set, append letter" branches.
var attrQualityLetters = []struct {
	flag   AttributeQuality
	letter string
}{
	{AttrQualityChangesOmitted, "C"},
	{AttrQualityFixed, "F"},
	{AttrQualitySingleton, "I"},
	{AttrQualityDiagnostics, "K"},
	{AttrQualityNonVolatile, "N"},
	{AttrQualityReportable, "P"},
	{AttrQualityQuieter, "Q"},
	{AttrQualityScene, "S"},
	{AttrQualityAtomic, "T"},
	{AttrQualityNullable, "X"},
	{AttrQualityList, "[List]"},
	{AttrQualityFabricScoped, "[FabricScoped]"},
	{AttrQualityFabricSensitive, "[FabricSensitive]"},
	{AttrQualityTimed, "[Timed]"},
}

// String returns a human-readable representation of the quality flags.
func (q AttributeQuality) String() string {
	if q == 0 {
		return "None"
	}
	var b strings.Builder
	for _, l := range attrQualityLetters {
		if q&l.flag != 0 {
			b.WriteString(l.letter)
		}
	}
	if b.Len() == 0 {
		return "None"
	}
	return b.String()
}

// CommandQuality defines quality flags for commands.
// Spec: Section 7.11
type CommandQuality uint32

const (
	// CmdQualityFabricScoped indicates the command requires fabric context (F quality).
	CmdQualityFabricScoped CommandQuality = 1 << iota
	// CmdQualityTimed indicates the command requires timed interaction (T quality).
	CmdQualityTimed
	// CmdQualityLargeMessage indicates the command may exceed minimum MTU (L quality). Spec 7.7.5.
	CmdQualityLargeMessage
)

var cmdQualityLetters = []struct {
	flag   CommandQuality
	letter string
}{
	{CmdQualityFabricScoped, "F"},
	{CmdQualityTimed, "T"},
	{CmdQualityLargeMessage, "L"},
}

// String returns a human-readable representation of the command quality flags.
func (q CommandQuality) String() string {
	if q == 0 {
		return "None"
	}
	var b strings.Builder
	for _, l := range cmdQualityLetters {
		if q&l.flag != 0 {
			b.WriteString(l.letter)
		}
	}
	if b.Len() == 0 {
		return "None"
	}
	return b.String()
}

// EventPriority defines the priority level for events.
// Spec: Section 7.14.1.3
type EventPriority int

const (
	EventPriorityDebug EventPriority = iota
	EventPriorityInfo
	EventPriorityCritical
)

var eventPriorityNames = [...]string{
	EventPriorityDebug:    "Debug",
	EventPriorityInfo:     "Info",
	EventPriorityCritical: "Critical",
}

func (p EventPriority) String() string {
	if p < 0 || int(p) >= len(eventPriorityNames) {
		return "Unknown"
	}
	return eventPriorityNames[p]
}

// IsValid returns true if the priority is a defined value.
func (p EventPriority) IsValid() bool {
	return p >= EventPriorityDebug && p <= EventPriorityCritical
}

// ClusterClassification identifies the type of cluster.
// Spec: Section 7.10.8
type ClusterClassification int

const (
	ClusterClassUnknown ClusterClassification = iota
	// ClusterClassUtility indicates a utility cluster (not primary operation). Spec 7.10.8.1.
	ClusterClassUtility
	// ClusterClassApplication indicates an application cluster (primary operation). Spec 7.10.8.2.
	ClusterClassApplication
)

func (c ClusterClassification) String() string {
	switch c {
	case ClusterClassUtility:
		return "Utility"
	case ClusterClassApplication:
		return "Application"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the classification is a defined value.
func (c ClusterClassification) IsValid() bool {
	return c == ClusterClassUtility || c == ClusterClassApplication
}

// EndpointComposition defines endpoint composition patterns.
// Spec: Section 9.2.1
type EndpointComposition int

const (
	CompositionUnknown EndpointComposition = iota
	// CompositionTree supports a general tree of endpoints, used for
	// physical device composition (e.g. Refrigerator).
	CompositionTree
	// CompositionFullFamily is a flat list of all descendant endpoints,
	// used by Root Node and Aggregator device types.
	CompositionFullFamily
)

func (c EndpointComposition) String() string {
	switch c {
	case CompositionTree:
		return "Tree"
	case CompositionFullFamily:
		return "FullFamily"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the composition is a defined value.
func (c EndpointComposition) IsValid() bool {
	return c == CompositionTree || c == CompositionFullFamily
}

// AuthMode identifies the authentication mode for a session.
type AuthMode int

const (
	AuthModeUnknown AuthMode = iota
	// AuthModeCASE indicates Certificate Authenticated Session Establishment.
	AuthModeCASE
	// AuthModePASE indicates Passcode Authenticated Session Establishment.
	AuthModePASE
	// AuthModeGroup indicates group authentication.
	AuthModeGroup
)

func (m AuthMode) String() string {
	switch m {
	case AuthModeCASE:
		return "CASE"
	case AuthModePASE:
		return "PASE"
	case AuthModeGroup:
		return "Group"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the auth mode is a defined value.
func (m AuthMode) IsValid() bool {
	return m >= AuthModeCASE && m <= AuthModeGroup
}
