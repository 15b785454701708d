package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/threadgraph/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Execute(t *testing.T) {
	r := registry.NewRegistry()
	r.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
		var in struct {
			Text  string `mapstructure:"text"`
			Times int    `mapstructure:"times"`
		}
		if err := registry.Decode(args, &in); err != nil {
			return nil, err
		}
		out := ""
		for i := 0; i < in.Times; i++ {
			out += in.Text
		}
		return out, nil
	})
	r.Register("alpha", func(context.Context, map[string]any) (any, error) { return nil, nil })

	res, err := r.Execute(context.Background(), "echo", map[string]any{"text": "ab", "times": "2"})
	require.NoError(t, err)
	assert.Equal(t, "abab", res)

	assert.Equal(t, []string{"alpha", "echo"}, r.Names())

	_, err = r.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, registry.ErrToolNotFound)
}

func TestDecode_RejectsIncompatibleTypes(t *testing.T) {
	var in struct {
		Times int `mapstructure:"times"`
	}
	err := registry.Decode(map[string]any{"times": []string{"x"}}, &in)
	assert.Error(t, err)
}
