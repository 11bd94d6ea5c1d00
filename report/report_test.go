package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlsergey/secan4go/colored"
)

func TestCollectorDeduplicatesByTraceIdentity(t *testing.T) {
	t.Parallel()

	source := colored.NewTrace("user input")
	sink := colored.NewTrace("sql executor")

	c := NewCollector()
	c.OnIntersection(source, sink)
	c.OnIntersection(source, sink)
	require.Len(t, c.Findings(), 1)

	// a different pair is a different finding
	c.OnIntersection(colored.NewTrace("other input"), sink)
	assert.Len(t, c.Findings(), 2)
}

func TestCollectorUnwindsChains(t *testing.T) {
	t.Parallel()

	root := colored.NewTrace("declared source parameter")
	step := colored.NewChainedTrace("composed through iadd", root)

	c := NewCollector()
	c.OnIntersection(step, colored.NewTrace("declared sink argument"))

	findings := c.Findings()
	require.Len(t, findings, 1)
	assert.Equal(t, []string{"composed through iadd", "declared source parameter"}, findings[0].SourceTrace)
	assert.Equal(t, []string{"declared sink argument"}, findings[0].SinkTrace)
}

func TestRenderPlain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Render(&buf, nil, false)
	assert.Contains(t, buf.String(), "no source-to-sink flows")

	buf.Reset()
	Render(&buf, []Finding{{
		SourceTrace: []string{"param 3 of demo.run"},
		SinkTrace:   []string{"arg 1 of Connection.prepareStatement"},
	}}, false)
	out := buf.String()
	assert.True(t, strings.Contains(out, "finding #1"))
	assert.True(t, strings.Contains(out, "param 3 of demo.run"))
	assert.True(t, strings.Contains(out, "Connection.prepareStatement"))
}

func TestExportImportRoundtrip(t *testing.T) {
	t.Parallel()

	in := []Finding{
		{SourceTrace: []string{"a", "b"}, SinkTrace: []string{"c"}},
		{SourceTrace: []string{"d"}, SinkTrace: []string{"e", "f"}},
	}
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, in))

	out, err := Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
