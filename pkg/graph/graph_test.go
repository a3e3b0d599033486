package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeKeysAreDeterministic(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"process", ProcessKey("DESKTOP-1", 1234), "process|DESKTOP-1|1234"},
		{"file", FileKey("DESKTOP-1", `C:\Windows\System32\cmd.exe`), `file|DESKTOP-1|C:\Windows\System32\cmd.exe`},
		{"ip address", IPAddressKey("8.8.8.8"), "ip_address|8.8.8.8"},
		{"inbound connection", InboundConnectionKey("10.0.0.5", 443), "inbound_connection|10.0.0.5|443"},
		{"outbound connection", OutboundConnectionKey("10.0.0.5", 49152), "outbound_connection|10.0.0.5|49152"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestNodeKeysDistinguishEntities(t *testing.T) {
	// Same pid on different hosts must not collide.
	assert.NotEqual(t, ProcessKey("host-a", 42), ProcessKey("host-b", 42))
	// Different kinds on the same host/port must not collide.
	assert.NotEqual(t, InboundConnectionKey("10.0.0.5", 443), OutboundConnectionKey("10.0.0.5", 443))
}

func TestGraphValidate(t *testing.T) {
	g := New(1493417302025)
	a := &Node{Key: "process|h|1", Kind: NodeKindProcess, State: StateExisting}
	b := &Node{Key: "file|h|/tmp/x", Kind: NodeKindFile, State: StateCreated}

	g.AddEdge(EdgeCreatedFiles, a.Key, b.Key)
	g.AddNode(a)
	g.AddNode(b)

	require.NoError(t, g.Validate())
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestGraphValidateRejectsDanglingEdge(t *testing.T) {
	g := New(1)
	g.AddNode(&Node{Key: "process|h|1", Kind: NodeKindProcess})
	g.AddEdge(EdgeChildren, "process|h|1", "process|h|2")

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process|h|2")
}
