package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fohlab/grapl/pkg/graph"
	"github.com/fohlab/grapl/pkg/sysmon"
)

const testUtcTime = "2017-04-28 22:08:22.025"

const testEpochMillis = uint64(1493417302025)

func processCreateEvent() *sysmon.ProcessCreateEvent {
	return &sysmon.ProcessCreateEvent{
		Header:          sysmon.Header{Computer: "DESKTOP-1", EventID: 1},
		UtcTime:         testUtcTime,
		ProcessID:       1234,
		ParentProcessID: 5678,
		Image:           `C:\Windows\System32\cmd.exe`,
	}
}

func fileCreateEvent() *sysmon.FileCreateEvent {
	return &sysmon.FileCreateEvent{
		Header:          sysmon.Header{Computer: "DESKTOP-1", EventID: 11},
		CreationUtcTime: testUtcTime,
		ProcessID:       1234,
		TargetFilename:  `C:\Users\bob\payload.dll`,
	}
}

func networkEvent(destination string) sysmon.NetworkEvent {
	return sysmon.NetworkEvent{
		Header:              sysmon.Header{Computer: "DESKTOP-1", EventID: 3},
		UtcTime:             testUtcTime,
		ProcessID:           1234,
		SourceHostname:      "10.0.0.5",
		SourcePort:          443,
		DestinationHostname: destination,
		DestinationPort:     49152,
	}
}

func edgeLabels(g *graph.Graph) []graph.EdgeLabel {
	labels := make([]graph.EdgeLabel, 0, len(g.Edges))
	for _, e := range g.Edges {
		labels = append(labels, e.Label)
	}
	return labels
}

func TestProcessCreateRule(t *testing.T) {
	g, err := MapEvent(processCreateEvent())
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, testEpochMillis, g.Timestamp)
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
	assert.ElementsMatch(t, []graph.EdgeLabel{graph.EdgeBinFile, graph.EdgeChildren}, edgeLabels(g))

	parent := g.Nodes[graph.ProcessKey("DESKTOP-1", 5678)]
	require.NotNil(t, parent)
	assert.Equal(t, graph.StateExisting, parent.State)
	assert.Equal(t, testEpochMillis, parent.LastSeenTimestamp)

	child := g.Nodes[graph.ProcessKey("DESKTOP-1", 1234)]
	require.NotNil(t, child)
	assert.Equal(t, graph.StateCreated, child.State)
	assert.Equal(t, testEpochMillis, child.CreatedTimestamp)
	assert.Equal(t, `C:\Windows\System32\cmd.exe`, child.Image)

	exe := g.Nodes[graph.FileKey("DESKTOP-1", `C:\Windows\System32\cmd.exe`)]
	require.NotNil(t, exe)
	assert.Equal(t, graph.StateExisting, exe.State)
}

func TestFileCreateRule(t *testing.T) {
	g, err := MapEvent(fileCreateEvent())
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, graph.EdgeCreatedFiles, g.Edges[0].Label)

	file := g.Nodes[graph.FileKey("DESKTOP-1", `C:\Users\bob\payload.dll`)]
	require.NotNil(t, file)
	assert.Equal(t, graph.StateCreated, file.State)
	assert.Equal(t, testEpochMillis, file.CreatedTimestamp)
}

func TestInboundConnectionRuleInternalDestination(t *testing.T) {
	g, err := MapEvent(&sysmon.InboundNetworkEvent{NetworkEvent: networkEvent("10.0.0.8")})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
	assert.ElementsMatch(t, []graph.EdgeLabel{graph.EdgeBoundConnection, graph.EdgeConnection}, edgeLabels(g))

	// Both halves keyed by the local source port so they stitch downstream.
	remote := g.Nodes[graph.InboundConnectionKey("10.0.0.8", 443)]
	require.NotNil(t, remote)
	assert.Equal(t, graph.StateCreated, remote.State)
}

func TestInboundConnectionRuleExternalDestination(t *testing.T) {
	g, err := MapEvent(&sysmon.InboundNetworkEvent{NetworkEvent: networkEvent("8.8.8.8")})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
	assert.ElementsMatch(t, []graph.EdgeLabel{graph.EdgeBoundConnection, graph.EdgeExternalConnection}, edgeLabels(g))

	ip := g.Nodes[graph.IPAddressKey("8.8.8.8")]
	require.NotNil(t, ip)
	assert.Equal(t, graph.NodeKindIPAddress, ip.Kind)
}

func TestOutboundConnectionRuleInternalDestination(t *testing.T) {
	g, err := MapEvent(&sysmon.OutboundNetworkEvent{NetworkEvent: networkEvent("192.168.1.10")})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
	assert.ElementsMatch(t, []graph.EdgeLabel{graph.EdgeCreatedConnection, graph.EdgeConnection}, edgeLabels(g))

	// The inferred inbound half sits on the destination port.
	inbound := g.Nodes[graph.InboundConnectionKey("192.168.1.10", 49152)]
	require.NotNil(t, inbound)
	assert.Equal(t, graph.StateExisting, inbound.State)
	assert.Equal(t, testEpochMillis, inbound.LastSeenTimestamp)
}

func TestOutboundConnectionRuleExternalDestination(t *testing.T) {
	g, err := MapEvent(&sysmon.OutboundNetworkEvent{NetworkEvent: networkEvent("93.184.216.34")})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
	assert.ElementsMatch(t, []graph.EdgeLabel{graph.EdgeCreatedConnection, graph.EdgeExternalConnection}, edgeLabels(g))
	assert.NotNil(t, g.Nodes[graph.IPAddressKey("93.184.216.34")])
}

func TestRulesAreIdempotent(t *testing.T) {
	events := []sysmon.Event{
		processCreateEvent(),
		fileCreateEvent(),
		&sysmon.InboundNetworkEvent{NetworkEvent: networkEvent("10.0.0.8")},
		&sysmon.OutboundNetworkEvent{NetworkEvent: networkEvent("8.8.8.8")},
	}

	for _, ev := range events {
		first, err := MapEvent(ev)
		require.NoError(t, err)
		second, err := MapEvent(ev)
		require.NoError(t, err)
		assert.Equal(t, first, second, "event kind %s", ev.Kind())
	}
}

func TestRulesPropagateTimestampErrors(t *testing.T) {
	ev := processCreateEvent()
	ev.UtcTime = "not a timestamp"

	_, err := MapEvent(ev)
	require.Error(t, err)

	var formatErr *TimestampFormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestRulesReturnMappingErrors(t *testing.T) {
	tests := []struct {
		name  string
		event sysmon.Event
		field string
	}{
		{
			name: "process create without asset",
			event: &sysmon.ProcessCreateEvent{
				UtcTime:   testUtcTime,
				ProcessID: 1,
				Image:     "x",
			},
			field: "asset_id",
		},
		{
			name: "process create without image",
			event: &sysmon.ProcessCreateEvent{
				Header:    sysmon.Header{Computer: "h"},
				UtcTime:   testUtcTime,
				ProcessID: 1,
			},
			field: "image",
		},
		{
			name: "file create without target",
			event: &sysmon.FileCreateEvent{
				Header:          sysmon.Header{Computer: "h"},
				CreationUtcTime: testUtcTime,
				ProcessID:       1,
			},
			field: "target_filename",
		},
		{
			name: "outbound without destination",
			event: &sysmon.OutboundNetworkEvent{NetworkEvent: sysmon.NetworkEvent{
				UtcTime:        testUtcTime,
				SourceHostname: "10.0.0.5",
			}},
			field: "destination_hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapEvent(tt.event)
			require.Error(t, err)

			var mapErr *MappingError
			require.ErrorAs(t, err, &mapErr)
			assert.Equal(t, tt.field, mapErr.Field)
		})
	}
}
