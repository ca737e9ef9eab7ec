package eval

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEvalTriggers(t *testing.T) {
	const fixtureYAML = `
snapshot:
  time: 2026-09-01T12:00:00Z
  battery_percent: 85
triggers:
  - name: battery charged
    kind: battery
    config:
      condition: charged_up_to
      threshold: 80
    state:
      kind: numeric
      value: 75
  - name: battery charged (first observation)
    kind: battery
    config:
      condition: charged_up_to
      threshold: 80
  - name: solar exporting
    kind: flow
    config:
      source: solar
      transition: rises_above
      threshold_kw: 5
  - name: outside window
    kind: battery
    config:
      condition: charged_up_to
      threshold: 80
    window:
      start: "18:00"
      end: "22:00"
    state:
      kind: numeric
      value: 75
`
	var f fixture
	require.NoError(t, yaml.Unmarshal([]byte(fixtureYAML), &f))

	r, err := evalTriggers(f)
	require.NoError(t, err)
	require.Len(t, r, 4)

	assert.True(t, r[0].fired)
	assert.Contains(t, r[0].reason, "battery charged to 85%")

	// no previous state: seeds the edge, never fires
	assert.False(t, r[1].fired)
	assert.True(t, r[1].updated)

	// no flow data in the snapshot
	assert.False(t, r[2].fired)
	assert.False(t, r[2].updated)

	// window gates evaluation entirely
	assert.False(t, r[3].fired)
	assert.False(t, r[3].updated)
}

func TestEvalTriggers_BadConfig(t *testing.T) {
	var f fixture
	require.NoError(t, yaml.Unmarshal([]byte(`
triggers:
  - name: bogus
    kind: teleport
`), &f))
	_, err := evalTriggers(f)
	assert.Error(t, err)
}

func TestResults_WriteTo(t *testing.T) {
	r := results{{name: "battery charged", fired: true, updated: true, reason: "battery charged to 85% (threshold 80%)"}}
	var out bytes.Buffer
	r.writeTo(&out)
	assert.Contains(t, out.String(), "TRIGGER")
	assert.Contains(t, out.String(), "battery charged")
}
