package release

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{in: "production", want: Environment{Kind: EnvProduction}},
		{in: "staging", want: Environment{Kind: EnvStaging}},
		{in: "preview:pr-42", want: Environment{Kind: EnvPreview, PreviewID: "pr-42"}},
		{in: "preview", wantErr: true},
		{in: "preview:PR_42", wantErr: true},
		{in: "qa", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnvironment(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestEnvironment_JSONAndYAML(t *testing.T) {
	env := Environment{Kind: EnvPreview, PreviewID: "abc"}

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Equal(t, `"preview:abc"`, string(data))

	var back Environment
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, env, back)

	var fromYAML struct {
		Env Environment `yaml:"env"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("env: staging\n"), &fromYAML))
	assert.Equal(t, EnvStaging, fromYAML.Env.Kind)
}

func TestParseImageRef(t *testing.T) {
	tests := []struct {
		in   string
		want ImageRef
		out  string
	}{
		{in: "pg:16.1", want: ImageRef{Repository: "pg", Tag: "16.1"}, out: "pg:16.1"},
		{
			in:   "myacr.azurecr.io/shop/api:v3",
			want: ImageRef{Registry: "myacr.azurecr.io", Repository: "shop/api", Tag: "v3"},
			out:  "myacr.azurecr.io/shop/api:v3",
		},
		{
			in:   "localhost:5000/web",
			want: ImageRef{Registry: "localhost:5000", Repository: "web"},
			out:  "localhost:5000/web",
		},
		{
			in:   "library/web@sha256:abc",
			want: ImageRef{Repository: "library/web", Tag: "sha256:abc"},
			out:  "library/web@sha256:abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseImageRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.out, got.String())
		})
	}

	_, err := ParseImageRef("")
	assert.Error(t, err)
}

func TestImageRef_UnmarshalYAMLMapping(t *testing.T) {
	var ref ImageRef
	require.NoError(t, yaml.Unmarshal([]byte("{registry: r.io, repository: api, tag: v1}"), &ref))
	assert.Equal(t, ImageRef{Registry: "r.io", Repository: "api", Tag: "v1"}, ref)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatePending, StatePrerequisitesReady))
	assert.True(t, CanTransition(StateHealthChecking, StateApplying))
	assert.True(t, CanTransition(StateRollingBack, StateRolledBack))
	assert.False(t, CanTransition(StatePending, StateRollingBack), "prerequisite failures never roll back")
	assert.False(t, CanTransition(StateSucceeded, StateRollingBack))
	assert.False(t, CanTransition(StateFailed, StatePending))
}
