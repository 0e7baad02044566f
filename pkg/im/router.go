package im

import (
	"bytes"
	"context"

	"github.com/chipcore/matterd/pkg/acl"
	"github.com/chipcore/matterd/pkg/datamodel"
	imsg "github.com/chipcore/matterd/pkg/im/message"
	"github.com/chipcore/matterd/pkg/tlv"
)

// WildcardRouter resolves attribute and command paths against a
// datamodel.Node, expanding wildcard endpoint/cluster/attribute fields
// by iterating the node's catalog and gating every resolved path
// through an ACL check.
//
// Unlike ReadHandler/WriteHandler/InvokeHandler, which operate on a
// single already-concrete path, WildcardRouter is the layer that turns
// a possibly-wildcard IM request into the set of concrete operations
// the rest of the engine dispatches.
type WildcardRouter struct {
	node    datamodel.Node
	checker *acl.Checker
}

// NewWildcardRouter creates a router over node. checker may be nil, in
// which case every resolved path is treated as implicitly allowed
// (useful for internal/test callers operating outside a session).
func NewWildcardRouter(node datamodel.Node, checker *acl.Checker) *WildcardRouter {
	return &WildcardRouter{node: node, checker: checker}
}

// resolvedAttribute is one concrete attribute path matched by a request,
// together with the cluster instance that owns it.
type resolvedAttribute struct {
	endpoint  imsg.EndpointID
	clusterID imsg.ClusterID
	attrID    imsg.AttributeID
	path      imsg.AttributePathIB
	cluster   datamodel.Cluster
	entry     datamodel.AttributeEntry
}

func isWildcardAttributePath(p imsg.AttributePathIB) bool {
	return p.Endpoint == nil || p.Cluster == nil || p.Attribute == nil
}

// endpointsFor returns the endpoints a possibly-nil endpoint selector
// matches: either the single named endpoint, or every endpoint on the
// node for a wildcard.
func (r *WildcardRouter) endpointsFor(sel *imsg.EndpointID) []datamodel.Endpoint {
	if sel != nil {
		ep := r.node.GetEndpoint(datamodel.EndpointID(*sel))
		if ep == nil {
			return nil
		}
		return []datamodel.Endpoint{ep}
	}
	return r.node.GetEndpoints()
}

// clustersFor returns the clusters a possibly-nil cluster selector
// matches on endpoint ep.
func clustersFor(ep datamodel.Endpoint, sel *imsg.ClusterID) []datamodel.Cluster {
	if sel != nil {
		c := ep.GetCluster(datamodel.ClusterID(*sel))
		if c == nil {
			return nil
		}
		return []datamodel.Cluster{c}
	}
	return ep.GetClusters()
}

// ResolveRead expands a ReadRequestMessage attribute path into every
// matching concrete attribute. A fully concrete path that does not
// resolve to anything is reported via unsupportedStatus so the caller
// can emit the matching AttributeStatusIB; a wildcard path that
// resolves to nothing is silently dropped (nil, nil).
func (r *WildcardRouter) ResolveRead(path imsg.AttributePathIB) (matches []resolvedAttribute, unsupportedStatus *imsg.Status) {
	wildcard := isWildcardAttributePath(path)

	endpoints := r.endpointsFor(path.Endpoint)
	if len(endpoints) == 0 {
		if !wildcard {
			s := imsg.StatusUnsupportedEndpoint
			return nil, &s
		}
		return nil, nil
	}

	for _, ep := range endpoints {
		clusters := clustersFor(ep, path.Cluster)
		if len(clusters) == 0 {
			if !wildcard {
				s := imsg.StatusUnsupportedCluster
				return nil, &s
			}
			continue
		}

		for _, cl := range clusters {
			attrs := cl.AttributeList()

			if path.Attribute != nil {
				found := false
				for _, a := range attrs {
					if a.ID == datamodel.AttributeID(*path.Attribute) {
						matches = append(matches, resolveMatch(ep, cl, a))
						found = true
						break
					}
				}
				if !found && !wildcard {
					s := imsg.StatusUnsupportedAttribute
					return nil, &s
				}
				continue
			}

			for _, a := range attrs {
				matches = append(matches, resolveMatch(ep, cl, a))
			}
		}
	}

	return matches, nil
}

func resolveMatch(ep datamodel.Endpoint, cl datamodel.Cluster, a datamodel.AttributeEntry) resolvedAttribute {
	epID := imsg.EndpointID(ep.ID())
	clID := imsg.ClusterID(cl.ID())
	attrID := imsg.AttributeID(a.ID)
	return resolvedAttribute{
		endpoint:  epID,
		clusterID: clID,
		attrID:    attrID,
		path: imsg.AttributePathIB{
			Endpoint:  imsg.Ptr(epID),
			Cluster:   imsg.Ptr(clID),
			Attribute: imsg.Ptr(attrID),
		},
		cluster: cl,
		entry:   a,
	}
}

// CheckRead gates a resolved attribute read against the ACL for
// subject, returning true when allowed (or no checker is configured).
func (r *WildcardRouter) CheckRead(subject acl.SubjectDescriptor, m resolvedAttribute) bool {
	if r.checker == nil {
		return true
	}
	target := acl.NewRequestPathWithEntity(uint32(m.clusterID), uint16(m.endpoint), acl.RequestTypeAttributeRead, uint32(m.attrID))
	return r.checker.Check(subject, target, acl.PrivilegeView) == acl.ResultAllowed
}

// CheckWrite gates a resolved attribute write against the ACL. Writes
// to the Access Control cluster (0x001F) require Administer; all
// other writes require Operate.
func (r *WildcardRouter) CheckWrite(subject acl.SubjectDescriptor, m resolvedAttribute) bool {
	if r.checker == nil {
		return true
	}
	required := acl.PrivilegeOperate
	if uint32(m.clusterID) == uint32(datamodel.ClusterAccessControl) {
		required = acl.PrivilegeAdminister
	}
	target := acl.NewRequestPathWithEntity(uint32(m.clusterID), uint16(m.endpoint), acl.RequestTypeAttributeWrite, uint32(m.attrID))
	return r.checker.Check(subject, target, required) == acl.ResultAllowed
}

// CheckInvoke gates a command invocation against the ACL. required is
// the command entry's declared invoke privilege.
func (r *WildcardRouter) CheckInvoke(subject acl.SubjectDescriptor, endpoint imsg.EndpointID, cluster imsg.ClusterID, command imsg.CommandID, required acl.Privilege) bool {
	if r.checker == nil {
		return true
	}
	target := acl.NewRequestPathWithEntity(uint32(cluster), uint16(endpoint), acl.RequestTypeCommandInvoke, uint32(command))
	return r.checker.Check(subject, target, required) == acl.ResultAllowed
}

// ResolveCommand looks up the single cluster and command entry named
// by a (necessarily concrete) CommandPathIB. Matter defines no
// wildcard invoke path, so CommandPathIB fields are never pointers.
func (r *WildcardRouter) ResolveCommand(path imsg.CommandPathIB) (cl datamodel.Cluster, entry *datamodel.CommandEntry, status imsg.Status) {
	ep := r.node.GetEndpoint(datamodel.EndpointID(path.Endpoint))
	if ep == nil {
		return nil, nil, imsg.StatusUnsupportedEndpoint
	}
	cl = ep.GetCluster(datamodel.ClusterID(path.Cluster))
	if cl == nil {
		return nil, nil, imsg.StatusUnsupportedCluster
	}
	for _, c := range cl.AcceptedCommandList() {
		if c.ID == datamodel.CommandID(path.Command) {
			entry := c
			return cl, &entry, imsg.StatusSuccess
		}
	}
	return cl, nil, imsg.StatusUnsupportedCommand
}

// ReadOne reads a single resolved attribute into an AttributeReportIB,
// including the cluster's current data version. A read error from the
// cluster itself surfaces as a StatusFailure report rather than a
// dropped path, since the path was already confirmed to exist.
func (r *WildcardRouter) ReadOne(ctx context.Context, subject acl.SubjectDescriptor, m resolvedAttribute, fabricFiltered bool) imsg.AttributeReportIB {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)

	req := datamodel.ReadAttributeRequest{
		Path: datamodel.ConcreteAttributePath{
			Endpoint:  datamodel.EndpointID(m.endpoint),
			Cluster:   datamodel.ClusterID(m.clusterID),
			Attribute: datamodel.AttributeID(m.attrID),
		},
		Subject: &datamodel.SubjectDescriptor{
			FabricIndex: subject.FabricIndex,
			NodeID:      subject.Subject,
		},
	}
	if fabricFiltered {
		req.ReadFlags |= datamodel.ReadFlagFabricFiltered
	}

	if err := m.cluster.ReadAttribute(ctx, req, w); err != nil {
		return imsg.AttributeReportIB{AttributeStatus: &imsg.AttributeStatusIB{
			Path:   m.path,
			Status: imsg.StatusIB{Status: imsg.StatusFailure},
		}}
	}

	return imsg.AttributeReportIB{AttributeData: &imsg.AttributeDataIB{
		DataVersion: imsg.DataVersion(m.cluster.DataVersion()),
		Path:        m.path,
		Data:        buf.Bytes(),
	}}
}
