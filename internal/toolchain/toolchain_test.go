package toolchain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blenderpy/bpybuild/internal/foundation/errors"
)

// fakeRegistry simulates a host with a fixed set of installed toolchain
// generations.
type fakeRegistry map[string]bool

func (f fakeRegistry) HasKey(name string) bool { return f[name] }

func registryWith(versions ...int) fakeRegistry {
	reg := fakeRegistry{}
	for _, v := range versions {
		reg[fmt.Sprintf("VisualStudio.DTE.%d.0", v)] = true
	}
	return reg
}

func TestDetectWindowsPicksNewestGeneration(t *testing.T) {
	probe := NewProbe(
		WithGOOS("windows"),
		WithWordWidth(64),
		WithRegistry(registryWith(12, 14, 15)),
	)

	info, err := probe.Detect()
	require.NoError(t, err)

	assert.Equal(t, Windows, info.OS)
	assert.Equal(t, Generation{Version: 15, Year: 2017}, info.Generation)
	assert.Equal(t, "Visual Studio 15 2017 Win64", info.Generator)
	require.NotNil(t, info.Aux)
	assert.Equal(t, "win64_vc14", info.Aux.Key)
}

func TestDetectWindowsOldestGeneration(t *testing.T) {
	probe := NewProbe(
		WithGOOS("windows"),
		WithWordWidth(32),
		WithRegistry(registryWith(12)),
	)

	info, err := probe.Detect()
	require.NoError(t, err)

	assert.Equal(t, "Visual Studio 12 2013", info.Generator)
	require.NotNil(t, info.Aux)
	assert.Equal(t, "windows_vc12", info.Aux.Key)
	assert.Equal(t, 32, info.Aux.WordWidth)
}

func TestDetectWindowsWithoutToolchainFails(t *testing.T) {
	probe := NewProbe(
		WithGOOS("windows"),
		WithWordWidth(64),
		WithRegistry(registryWith()),
	)

	_, err := probe.Detect()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryToolchain), "got %v", err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)
}

func TestDetectLinux(t *testing.T) {
	info, err := NewProbe(WithGOOS("linux"), WithWordWidth(64)).Detect()
	require.NoError(t, err)

	assert.Equal(t, Linux, info.OS)
	assert.Equal(t, "Unix Makefiles", info.Generator)
	assert.Equal(t, Generation{}, info.Generation)
	assert.Nil(t, info.Aux, "linux needs no auxiliary library")
}

func TestDetectMacOS(t *testing.T) {
	info, err := NewProbe(WithGOOS("darwin"), WithWordWidth(64)).Detect()
	require.NoError(t, err)
	assert.Equal(t, MacOS, info.OS)
	assert.Nil(t, info.Aux)
}

func TestDetectUnsupportedOS(t *testing.T) {
	_, err := NewProbe(WithGOOS("plan9")).Detect()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)
}

// TestAuxiliarySelectionMatchesWidthAcrossMatrix asserts the invariant that
// detection never selects a library built for a different word width than
// detected, for every supported (osFamily, wordWidth) pair.
func TestAuxiliarySelectionMatchesWidthAcrossMatrix(t *testing.T) {
	for _, goos := range []string{"windows", "linux", "darwin"} {
		for _, width := range []int{32, 64} {
			t.Run(fmt.Sprintf("%s_%d", goos, width), func(t *testing.T) {
				info, err := NewProbe(
					WithGOOS(goos),
					WithWordWidth(width),
					WithRegistry(registryWith(14)),
				).Detect()
				require.NoError(t, err)
				require.NoError(t, info.Validate())
				if info.Aux != nil {
					assert.Equal(t, width, info.Aux.WordWidth)
				}
			})
		}
	}
}

func TestWordWidthZeroMeansAutodetect(t *testing.T) {
	info, err := NewProbe(WithGOOS("linux"), WithWordWidth(0)).Detect()
	require.NoError(t, err)
	assert.Contains(t, []int{32, 64}, info.WordWidth)
}
