package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Host string
	Port int
}

type sample struct {
	Name    string
	Count   int
	Enabled bool
	Inner   nested
	Ptr     *nested
	Tags    []string
}

// TestMergeConfigOverridesNonZero 非零字段覆盖默认值
func TestMergeConfigOverridesNonZero(t *testing.T) {
	dst := &sample{Name: "default", Count: 5, Inner: nested{Host: "localhost", Port: 5432}}
	src := &sample{Count: 10, Inner: nested{Port: 6432}}

	got, err := MergeConfig(dst, src)
	require.NoError(t, err)

	assert.Equal(t, "default", got.Name) // src 零值不覆盖
	assert.Equal(t, 10, got.Count)
	assert.Equal(t, "localhost", got.Inner.Host)
	assert.Equal(t, 6432, got.Inner.Port)
}

func TestMergeConfigNilHandling(t *testing.T) {
	cfg := &sample{Name: "x"}

	got, err := MergeConfig[sample](nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	got, err = MergeConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = MergeConfig[sample](nil, nil)
	assert.Error(t, err)
}

// TestMergeConfigPointer 指针字段深度合并
func TestMergeConfigPointer(t *testing.T) {
	dst := &sample{Ptr: &nested{Host: "a", Port: 1}}
	src := &sample{Ptr: &nested{Port: 2}}

	got, err := MergeConfig(dst, src)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Ptr.Host)
	assert.Equal(t, 2, got.Ptr.Port)
}

// TestMergeConfigSliceReplaced 切片整体覆盖
func TestMergeConfigSliceReplaced(t *testing.T) {
	dst := &sample{Tags: []string{"a", "b"}}
	src := &sample{Tags: []string{"c"}}

	got, err := MergeConfig(dst, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got.Tags)
}
