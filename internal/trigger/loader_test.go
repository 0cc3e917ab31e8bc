package trigger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTriggerFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validTriggerFile = `
triggers:
  - name: price spike
    categories: [price]
    min_severity: medium
    conditions:
      - field: change_pct
        operator: gte
        value: 3.0
    actions:
      - type: notify
    cooldown_seconds: 300
  - name: halt on critical
    min_severity: critical
    enabled: false
    actions:
      - type: pause_trading
`

func TestLoaderLoadsFile(t *testing.T) {
	reg := NewRegistry()
	path := writeTriggerFile(t, validTriggerFile)

	_, err := NewLoader(path, reg)
	require.NoError(t, err)

	triggers := reg.List()
	require.Len(t, triggers, 2)

	byName := make(map[string]Trigger, len(triggers))
	for _, tr := range triggers {
		byName[tr.Name] = tr
	}

	spike := byName["price spike"]
	// File triggers get stable ids so cooldowns survive reloads.
	assert.Equal(t, "file:price spike", spike.ID)
	assert.True(t, spike.Enabled)
	assert.Equal(t, 300, spike.Cooldown)
	require.Len(t, spike.Conditions, 1)
	assert.Equal(t, OpGte, spike.Conditions[0].Operator)

	halt := byName["halt on critical"]
	assert.False(t, halt.Enabled, "explicit enabled: false must be kept")
}

func TestLoaderRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "missing name",
			yaml: "triggers:\n  - enabled: true\n",
		},
		{
			name: "unknown operator",
			yaml: "triggers:\n  - name: x\n    conditions:\n      - field: f\n        operator: matches\n        value: 1\n",
		},
		{
			name: "unknown action type",
			yaml: "triggers:\n  - name: x\n    actions:\n      - type: email\n",
		},
		{
			name: "negative cooldown",
			yaml: "triggers:\n  - name: x\n    cooldown_seconds: -5\n",
		},
		{
			name: "bad severity",
			yaml: "triggers:\n  - name: x\n    min_severity: urgent\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			path := writeTriggerFile(t, tc.yaml)
			_, err := NewLoader(path, reg)
			require.Error(t, err)
		})
	}
}

func TestLoaderReloadKeepsOldSetOnError(t *testing.T) {
	reg := NewRegistry()
	path := writeTriggerFile(t, validTriggerFile)
	loader, err := NewLoader(path, reg)
	require.NoError(t, err)
	require.Len(t, reg.List(), 2)

	// Break the file; the reload fails and the registry is untouched.
	require.NoError(t, os.WriteFile(path, []byte("triggers:\n  - enabled: true\n"), 0o644))
	require.Error(t, loader.Reload())
	assert.Len(t, reg.List(), 2)

	// Fix it down to one trigger; the swap is applied.
	require.NoError(t, os.WriteFile(path, []byte("triggers:\n  - name: only one\n    actions:\n      - type: log\n"), 0o644))
	require.NoError(t, loader.Reload())
	triggers := reg.List()
	require.Len(t, triggers, 1)
	assert.Equal(t, "only one", triggers[0].Name)
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), NewRegistry())
	require.Error(t, err)

	_, err = NewLoader("  ", NewRegistry())
	require.Error(t, err)
}
