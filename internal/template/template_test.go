package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
		vars map[string]string
		want []string
	}{
		{
			name: "single placeholder",
			args: []string{"--address", "{{address}}"},
			vars: map[string]string{"address": "0x1001"},
			want: []string{"--address", "0x1001"},
		},
		{
			name: "repeated placeholder",
			args: []string{"--name={{node_name}}", "--data=/var/{{node_name}}"},
			vars: map[string]string{"node_name": "team-a-1"},
			want: []string{"--name=team-a-1", "--data=/var/team-a-1"},
		},
		{
			name: "multiple placeholders in one argument",
			args: []string{"{{team}}/{{node_name}}"},
			vars: map[string]string{"team": "alpha", "node_name": "alpha-1"},
			want: []string{"alpha/alpha-1"},
		},
		{
			name: "no placeholders",
			args: []string{"run", "--verbose"},
			vars: map[string]string{},
			want: []string{"run", "--verbose"},
		},
		{
			name: "empty value is a valid substitution",
			args: []string{"--peers={{peer_addrs}}"},
			vars: map[string]string{"peer_addrs": ""},
			want: []string{"--peers="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Render(tt.args, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			for _, arg := range got {
				assert.NotContains(t, arg, "{{")
				assert.NotContains(t, arg, "}}")
			}
		})
	}
}

func TestRender_UnresolvedPlaceholder(t *testing.T) {
	t.Parallel()
	args := []string{"--address", "{{address}}", "--peers", "{{peer_addrs}}"}
	got, err := Render(args, map[string]string{"address": "0x1001"})

	require.Error(t, err)
	assert.Nil(t, got, "no partial output on failure")

	var unresolved *UnresolvedPlaceholderError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "peer_addrs", unresolved.Name)
	assert.True(t, strings.Contains(err.Error(), "peer_addrs"))
}

func TestRender_FailsBeforeAnySubstitution(t *testing.T) {
	t.Parallel()
	// The bad template comes last; earlier templates must not be
	// substituted either.
	args := []string{"{{good}}", "{{missing}}"}
	got, err := Render(args, map[string]string{"good": "ok"})
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestNames(t *testing.T) {
	t.Parallel()
	args := []string{"--a={{address}}", "--p={{peer_addrs}}", "--again={{address}}"}
	assert.Equal(t, []string{"address", "peer_addrs"}, Names(args))
	assert.Nil(t, Names([]string{"no", "placeholders"}))
}
