package generator

import (
	"github.com/fohlab/grapl/pkg/graph"
	"github.com/fohlab/grapl/pkg/sysmon"
)

// Each rule is a pure function from one telemetry event to one
// self-contained fragment. The rule normalizes the event timestamp first,
// stamps the fragment and every node with it, and commits all nodes and
// edges together; on any failure it returns without partial output.

func handleProcessCreate(ev *sysmon.ProcessCreateEvent) (*graph.Graph, error) {
	timestamp, err := UTCToEpoch(ev.UtcTime)
	if err != nil {
		return nil, err
	}
	if ev.Computer == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "asset_id"}
	}
	if ev.Image == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "image"}
	}

	g := graph.New(timestamp)

	parent := &graph.Node{
		Key:               graph.ProcessKey(ev.Computer, ev.ParentProcessID),
		Kind:              graph.NodeKindProcess,
		State:             graph.StateExisting,
		AssetID:           ev.Computer,
		Pid:               ev.ParentProcessID,
		LastSeenTimestamp: timestamp,
	}

	child := &graph.Node{
		Key:              graph.ProcessKey(ev.Computer, ev.ProcessID),
		Kind:             graph.NodeKindProcess,
		State:            graph.StateCreated,
		AssetID:          ev.Computer,
		Pid:              ev.ProcessID,
		Image:            ev.Image,
		CreatedTimestamp: timestamp,
	}

	childExe := &graph.Node{
		Key:               graph.FileKey(ev.Computer, ev.Image),
		Kind:              graph.NodeKindFile,
		State:             graph.StateExisting,
		AssetID:           ev.Computer,
		Path:              ev.Image,
		LastSeenTimestamp: timestamp,
	}

	g.AddEdge(graph.EdgeBinFile, child.Key, childExe.Key)
	g.AddNode(childExe)

	g.AddEdge(graph.EdgeChildren, parent.Key, child.Key)
	g.AddNode(parent)
	g.AddNode(child)

	return g, nil
}

func handleFileCreate(ev *sysmon.FileCreateEvent) (*graph.Graph, error) {
	timestamp, err := UTCToEpoch(ev.CreationUtcTime)
	if err != nil {
		return nil, err
	}
	if ev.Computer == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "asset_id"}
	}
	if ev.TargetFilename == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "target_filename"}
	}

	g := graph.New(timestamp)

	creator := &graph.Node{
		Key:               graph.ProcessKey(ev.Computer, ev.ProcessID),
		Kind:              graph.NodeKindProcess,
		State:             graph.StateExisting,
		AssetID:           ev.Computer,
		Pid:               ev.ProcessID,
		LastSeenTimestamp: timestamp,
	}

	file := &graph.Node{
		Key:              graph.FileKey(ev.Computer, ev.TargetFilename),
		Kind:             graph.NodeKindFile,
		State:            graph.StateCreated,
		AssetID:          ev.Computer,
		Path:             ev.TargetFilename,
		CreatedTimestamp: timestamp,
	}

	g.AddEdge(graph.EdgeCreatedFiles, creator.Key, file.Key)
	g.AddNode(creator)
	g.AddNode(file)

	return g, nil
}

func handleInboundConnection(ev *sysmon.InboundNetworkEvent) (*graph.Graph, error) {
	timestamp, err := UTCToEpoch(ev.UtcTime)
	if err != nil {
		return nil, err
	}
	if ev.SourceHostname == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "source_hostname"}
	}
	if ev.DestinationHostname == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "destination_hostname"}
	}

	g := graph.New(timestamp)

	process := &graph.Node{
		Key:               graph.ProcessKey(ev.SourceHostname, ev.ProcessID),
		Kind:              graph.NodeKindProcess,
		State:             graph.StateExisting,
		HostIP:            ev.SourceHostname,
		Pid:               ev.ProcessID,
		LastSeenTimestamp: timestamp,
	}

	// Inbound is the 'src' side in Sysmon's event id 3.
	local := &graph.Node{
		Key:              graph.InboundConnectionKey(ev.SourceHostname, ev.SourcePort),
		Kind:             graph.NodeKindInboundConnection,
		State:            graph.StateCreated,
		HostIP:           ev.SourceHostname,
		Port:             ev.SourcePort,
		CreatedTimestamp: timestamp,
	}

	if IsInternal([]byte(ev.DestinationHostname)) {
		// The remote side is instrumented too: model it as the paired
		// half-connection so downstream merge can stitch the two
		// independently observed halves into one logical connection.
		remote := &graph.Node{
			Key:              graph.InboundConnectionKey(ev.DestinationHostname, ev.SourcePort),
			Kind:             graph.NodeKindInboundConnection,
			State:            graph.StateCreated,
			HostIP:           ev.DestinationHostname,
			Port:             ev.SourcePort,
			CreatedTimestamp: timestamp,
		}
		g.AddEdge(graph.EdgeConnection, remote.Key, local.Key)
		g.AddNode(remote)
	} else {
		// No paired observation will ever arrive for an external remote;
		// a single IP address node is all downstream can link to.
		externalIP := &graph.Node{
			Key:               graph.IPAddressKey(ev.DestinationHostname),
			Kind:              graph.NodeKindIPAddress,
			HostIP:            ev.DestinationHostname,
			LastSeenTimestamp: timestamp,
		}
		g.AddEdge(graph.EdgeExternalConnection, local.Key, externalIP.Key)
		g.AddNode(externalIP)
	}

	g.AddEdge(graph.EdgeBoundConnection, process.Key, local.Key)
	g.AddNode(local)
	g.AddNode(process)

	return g, nil
}

func handleOutboundConnection(ev *sysmon.OutboundNetworkEvent) (*graph.Graph, error) {
	timestamp, err := UTCToEpoch(ev.UtcTime)
	if err != nil {
		return nil, err
	}
	if ev.SourceHostname == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "source_hostname"}
	}
	if ev.DestinationHostname == "" {
		return nil, &MappingError{EventKind: string(ev.Kind()), Field: "destination_hostname"}
	}

	g := graph.New(timestamp)

	process := &graph.Node{
		Key:               graph.ProcessKey(ev.SourceHostname, ev.ProcessID),
		Kind:              graph.NodeKindProcess,
		State:             graph.StateExisting,
		HostIP:            ev.SourceHostname,
		Pid:               ev.ProcessID,
		LastSeenTimestamp: timestamp,
	}

	outbound := &graph.Node{
		Key:              graph.OutboundConnectionKey(ev.SourceHostname, ev.SourcePort),
		Kind:             graph.NodeKindOutboundConnection,
		State:            graph.StateCreated,
		HostIP:           ev.SourceHostname,
		Port:             ev.SourcePort,
		CreatedTimestamp: timestamp,
	}

	if IsInternal([]byte(ev.DestinationHostname)) {
		// Some internal process must hold the inbound half on dst_port,
		// inferred rather than observed here.
		inbound := &graph.Node{
			Key:               graph.InboundConnectionKey(ev.DestinationHostname, ev.DestinationPort),
			Kind:              graph.NodeKindInboundConnection,
			State:             graph.StateExisting,
			HostIP:            ev.DestinationHostname,
			Port:              ev.DestinationPort,
			LastSeenTimestamp: timestamp,
		}
		g.AddEdge(graph.EdgeConnection, outbound.Key, inbound.Key)
		g.AddNode(inbound)
	} else {
		externalIP := &graph.Node{
			Key:               graph.IPAddressKey(ev.DestinationHostname),
			Kind:              graph.NodeKindIPAddress,
			HostIP:            ev.DestinationHostname,
			LastSeenTimestamp: timestamp,
		}
		g.AddEdge(graph.EdgeExternalConnection, outbound.Key, externalIP.Key)
		g.AddNode(externalIP)
	}

	g.AddEdge(graph.EdgeCreatedConnection, process.Key, outbound.Key)
	g.AddNode(outbound)
	g.AddNode(process)

	return g, nil
}
