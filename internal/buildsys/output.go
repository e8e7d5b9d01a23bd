package buildsys

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/toolchain"
)

// Output describes the artifacts a successful build leaves in the build
// tree, located for the relocation stage.
type Output struct {
	Root          string   // directory holding the artifacts
	ModulePath    string   // the importable module binary
	SupportDir    string   // version-numbered resource directory, e.g. "2.79"
	CompanionDLLs []string // shared libraries the module loads at import time
}

// versionDirPattern matches the version-numbered support directory that
// ships next to the module binary ("2.79", "2.80").
var versionDirPattern = regexp.MustCompile(`^\d+\.\d+$`)

// moduleNames lists the module binary filename per platform. The binary is
// a native extension named after the importable package.
func moduleNames(host toolchain.OSFamily) []string {
	switch host {
	case toolchain.Windows:
		return []string{"bpy.pyd"}
	default:
		return []string{"bpy.so"}
	}
}

// LocateOutput finds the module binary, its support directory and its
// companion shared libraries under the build tree. Multi-configuration
// generators place binaries under bin/<configuration>, single-configuration
// ones directly under bin.
func LocateOutput(buildDir string, host toolchain.OSFamily) (*Output, error) {
	candidates := []string{
		filepath.Join(buildDir, "bin", buildConfiguration),
		filepath.Join(buildDir, "bin"),
	}

	for _, root := range candidates {
		output, ok := scanOutputDir(root, host)
		if ok {
			return output, nil
		}
	}

	return nil, errors.BuildError(errors.CodeNotFound, "module binary not found in build output").
		WithContext("build_dir", buildDir).
		Build()
}

func scanOutputDir(root string, host toolchain.OSFamily) (*Output, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, false
	}

	output := &Output{Root: root}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir() && versionDirPattern.MatchString(name):
			output.SupportDir = filepath.Join(root, name)
		case !entry.IsDir() && isModuleBinary(name, host):
			output.ModulePath = filepath.Join(root, name)
		case !entry.IsDir() && isCompanionDLL(name):
			output.CompanionDLLs = append(output.CompanionDLLs, filepath.Join(root, name))
		}
	}

	if output.ModulePath == "" {
		return nil, false
	}
	return output, true
}

func isModuleBinary(name string, host toolchain.OSFamily) bool {
	for _, candidate := range moduleNames(host) {
		if name == candidate {
			return true
		}
	}
	return false
}

// isCompanionDLL reports whether the file is a shared library that must
// travel with the module. The interpreter's own runtime libraries and the
// module binary itself stay behind.
func isCompanionDLL(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".dll") {
		return false
	}
	return !strings.HasPrefix(lower, "python") && !strings.HasPrefix(lower, "bpy")
}
