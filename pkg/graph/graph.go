// Package graph provides the provenance-graph fragment model produced by
// the subgraph generators: typed nodes connected by typed, directed edges.
// Fragments are merged into the investigative graph by downstream services;
// this package only guarantees deterministic node identity so that merge
// logic can recognize the same logical entity across fragments.
package graph

import (
	"fmt"
	"strconv"
)

// NodeKind represents the type of a graph node.
type NodeKind string

const (
	NodeKindProcess            NodeKind = "process"
	NodeKindFile               NodeKind = "file"
	NodeKindIPAddress          NodeKind = "ip_address"
	NodeKindInboundConnection  NodeKind = "inbound_connection"
	NodeKindOutboundConnection NodeKind = "outbound_connection"
)

// NodeState records whether the entity was directly observed being created
// by the originating event, or only inferred to already exist.
type NodeState string

const (
	StateExisting NodeState = "existing"
	StateCreated  NodeState = "created"
)

// EdgeLabel is the fixed vocabulary of edge types.
type EdgeLabel string

const (
	EdgeBinFile            EdgeLabel = "bin_file"
	EdgeChildren           EdgeLabel = "children"
	EdgeCreatedFiles       EdgeLabel = "created_files"
	EdgeConnection         EdgeLabel = "connection"
	EdgeExternalConnection EdgeLabel = "external_connection"
	EdgeBoundConnection    EdgeLabel = "bound_connection"
	EdgeCreatedConnection  EdgeLabel = "created_connection"
)

// Node is a single graph entity. Key is derived deterministically from the
// asset/host identifier plus the kind-specific discriminants, so two
// fragments describing the same logical entity carry the same key.
type Node struct {
	Key   string    `json:"key"`
	Kind  NodeKind  `json:"kind"`
	State NodeState `json:"state,omitempty"`

	AssetID string `json:"asset_id,omitempty"`
	HostIP  string `json:"host_ip,omitempty"`
	Pid     uint64 `json:"pid,omitempty"`
	Image   string `json:"image,omitempty"`
	Path    string `json:"path,omitempty"`
	Port    uint16 `json:"port,omitempty"`

	CreatedTimestamp  uint64 `json:"created_timestamp,omitempty"`
	LastSeenTimestamp uint64 `json:"last_seen_timestamp,omitempty"`
}

// Edge is a directed, labeled connection between two node keys.
type Edge struct {
	Label EdgeLabel `json:"label"`
	From  string    `json:"from"`
	To    string    `json:"to"`
}

// Graph is one self-contained fragment derived from a single telemetry
// event. It is owned by its construction rule until handed to the output
// sink and is never merged with other fragments in this service.
type Graph struct {
	Timestamp uint64           `json:"timestamp"`
	Nodes     map[string]*Node `json:"nodes"`
	Edges     []Edge           `json:"edges"`
}

// Batch is the unordered collection of fragments produced from one payload.
type Batch struct {
	Subgraphs []*Graph `json:"subgraphs"`
}

// New returns an empty fragment stamped with the originating event's
// epoch-millisecond timestamp.
func New(timestamp uint64) *Graph {
	return &Graph{
		Timestamp: timestamp,
		Nodes:     make(map[string]*Node),
	}
}

// AddNode inserts the node under its key.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.Key] = n
}

// AddEdge appends a directed edge between two node keys.
func (g *Graph) AddEdge(label EdgeLabel, from, to string) {
	g.Edges = append(g.Edges, Edge{Label: label, From: from, To: to})
}

// Validate checks that every edge endpoint references a node present in the
// fragment.
func (g *Graph) Validate() error {
	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return fmt.Errorf("edge %q references missing source node %q", e.Label, e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return fmt.Errorf("edge %q references missing destination node %q", e.Label, e.To)
		}
	}
	return nil
}

// NodeCount returns the number of nodes in the fragment.
func (g *Graph) NodeCount() int { return len(g.Nodes) }

// EdgeCount returns the number of edges in the fragment.
func (g *Graph) EdgeCount() int { return len(g.Edges) }

// ProcessKey derives the identity key of a process observed on a host. The
// host is identified by asset id where the telemetry carries one, or by the
// host IP for network telemetry.
func ProcessKey(host string, pid uint64) string {
	return "process|" + host + "|" + strconv.FormatUint(pid, 10)
}

// FileKey derives the identity key of a file path on a host.
func FileKey(host, path string) string {
	return "file|" + host + "|" + path
}

// IPAddressKey derives the identity key of an external IP address. External
// addresses are global, not scoped to an asset.
func IPAddressKey(ip string) string {
	return "ip_address|" + ip
}

// InboundConnectionKey derives the identity key of the listening side of a
// connection on a host.
func InboundConnectionKey(host string, port uint16) string {
	return "inbound_connection|" + host + "|" + strconv.FormatUint(uint64(port), 10)
}

// OutboundConnectionKey derives the identity key of the originating side of
// a connection on a host.
func OutboundConnectionKey(host string, port uint16) string {
	return "outbound_connection|" + host + "|" + strconv.FormatUint(uint64(port), 10)
}
