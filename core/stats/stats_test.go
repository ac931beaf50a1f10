package stats

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLink(t *testing.T) {
	r := NewRegistry()
	l := r.Link("e0")
	assert.Same(t, l, r.Link("e0"))

	l.Xmit.Add(2)
	l.Drop.Add(1)
	assert.Equal(t, Snapshot{Xmit: 2, Drop: 1}, r.Link("e0").Snapshot())

	r.SetState("e1", "degraded")
	assert.Equal(t, []string{"e0", "e1"}, r.Names())
	assert.Equal(t, "degraded", r.State("e1"))
}

func TestCollector(t *testing.T) {
	r := NewRegistry()
	l := r.Link("e0")
	l.Recv.Add(3)
	l.MemErr.Add(1)
	r.SetState("e0", "addressed")

	expected := `
# HELP etherhive_interface_state Addressing state of an interface; the active state has value 1.
# TYPE etherhive_interface_state gauge
etherhive_interface_state{interface="e0",state="addressed"} 1
# HELP etherhive_link_frames_total Frames handled by the link layer, by direction.
# TYPE etherhive_link_frames_total counter
etherhive_link_frames_total{direction="recv",interface="e0"} 3
etherhive_link_frames_total{direction="xmit",interface="e0"} 0
`
	c := NewCollector(r)
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"etherhive_interface_state", "etherhive_link_frames_total"))
	assert.Equal(t, 6, testutil.CollectAndCount(c))
}
