// Package toolchain implements the platform-probe stage: it reads the host
// operating system, the process word width and the installed native
// toolchain generation, and resolves them into the build-system generator
// and auxiliary-library selection. Detection performs no mutation and is
// safely repeatable.
package toolchain

import (
	"fmt"
	"math/bits"
	"runtime"

	"github.com/blenderpy/bpybuild/internal/foundation/errors"
)

// OSFamily is the host operating-system family, expressed as data so that
// downstream stages switch on a value instead of dispatching polymorphically.
type OSFamily string

const (
	Windows OSFamily = "windows"
	Linux   OSFamily = "linux"
	MacOS   OSFamily = "macos"
)

// Generation identifies an installed Visual Studio toolchain generation.
// The zero value means "not applicable" (non-Windows hosts).
type Generation struct {
	Version int // DTE/registry version (12, 14, 15)
	Year    int // marketing year (2013, 2015, 2017)
}

// knownGenerations holds the supported toolchain generations, oldest first.
// VS 2013 (DTE 12) is the project's minimum requirement.
var knownGenerations = []Generation{
	{Version: 12, Year: 2013},
	{Version: 14, Year: 2015},
	{Version: 15, Year: 2017},
}

// AuxRequirement describes the platform auxiliary-library archive a host
// needs: precompiled link libraries matched to word width and toolchain
// library generation. Nil on platforms that need none.
type AuxRequirement struct {
	Key       string // archive key, e.g. "win64_vc14" or "windows_vc12"
	WordWidth int
}

// Info is the platform-probe result consumed by the auxiliary and
// configure stages.
type Info struct {
	OS         OSFamily
	WordWidth  int
	Generation Generation // zero value outside Windows
	Generator  string     // build-system generator name
	Aux        *AuxRequirement
}

// Validate checks the internal-consistency invariant: the auxiliary
// selection and generator must agree with the detected word width.
func (i *Info) Validate() error {
	if i.Aux != nil && i.Aux.WordWidth != i.WordWidth {
		return fmt.Errorf("auxiliary library width %d disagrees with detected width %d", i.Aux.WordWidth, i.WordWidth)
	}
	return nil
}

// RegistryProbe reads the toolchain's own registration from the host.
// Abstracted so tests can inject an arbitrary installation matrix.
type RegistryProbe interface {
	// HasKey reports whether the named toolchain registration class exists.
	HasKey(name string) bool
}

// Probe detects the host platform. The zero configuration probes the real
// host; options override individual readings for tests and for an
// operator-requested word width.
type Probe struct {
	goos      string
	wordWidth int
	registry  RegistryProbe
}

// Option configures a Probe.
type Option func(*Probe)

// WithGOOS overrides the detected operating system (tests).
func WithGOOS(goos string) Option {
	return func(p *Probe) { p.goos = goos }
}

// WithWordWidth requests a specific word width instead of the process's own.
func WithWordWidth(width int) Option {
	return func(p *Probe) {
		if width != 0 {
			p.wordWidth = width
		}
	}
}

// WithRegistry overrides the toolchain registry reader (tests, non-Windows).
func WithRegistry(r RegistryProbe) Option {
	return func(p *Probe) { p.registry = r }
}

// NewProbe creates a platform probe for the running host.
func NewProbe(opts ...Option) *Probe {
	p := &Probe{
		goos:      runtime.GOOS,
		wordWidth: bits.UintSize,
		registry:  defaultRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Detect resolves the host into a concrete build configuration. It fails
// with a not-found toolchain error rather than guessing when the required
// toolchain generation is absent.
func (p *Probe) Detect() (*Info, error) {
	family, err := familyOf(p.goos)
	if err != nil {
		return nil, err
	}

	info := &Info{
		OS:        family,
		WordWidth: p.wordWidth,
	}

	switch family {
	case Windows:
		gen, err := p.highestGeneration()
		if err != nil {
			return nil, err
		}
		info.Generation = gen
		info.Generator = windowsGenerator(gen, p.wordWidth)
		info.Aux = auxFor(gen, p.wordWidth)
	default:
		info.Generator = "Unix Makefiles"
	}

	if err := info.Validate(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryToolchain, "inconsistent platform detection").Build()
	}
	return info, nil
}

func familyOf(goos string) (OSFamily, error) {
	switch goos {
	case "windows":
		return Windows, nil
	case "linux":
		return Linux, nil
	case "darwin":
		return MacOS, nil
	default:
		return "", errors.ToolchainError(errors.CodeNotFound, "unsupported host operating system").
			WithContext("os", goos).
			Build()
	}
}

// highestGeneration returns the newest installed toolchain generation at or
// above the minimum requirement.
func (p *Probe) highestGeneration() (Generation, error) {
	var found Generation
	for _, gen := range knownGenerations {
		if p.registry.HasKey(fmt.Sprintf("VisualStudio.DTE.%d.0", gen.Version)) {
			found = gen
		}
	}
	if found.Version == 0 {
		return Generation{}, errors.ToolchainError(errors.CodeNotFound, "Visual Studio 2013 or later with the C++ build tools is required").
			Build()
	}
	return found, nil
}

func windowsGenerator(gen Generation, width int) string {
	name := fmt.Sprintf("Visual Studio %d %d", gen.Version, gen.Year)
	if width == 64 {
		name += " Win64"
	}
	return name
}

// auxFor selects the precompiled library archive variant. The library
// generation is vc12 for VS 2013 and vc14 for VS 2015/2017 (upstream ships
// no vc15 set; vc14 is ABI-compatible).
func auxFor(gen Generation, width int) *AuxRequirement {
	libGen := 14
	if gen.Version == 12 {
		libGen = 12
	}
	base := "windows"
	if width == 64 {
		base = "win64"
	}
	return &AuxRequirement{
		Key:       fmt.Sprintf("%s_vc%d", base, libGen),
		WordWidth: width,
	}
}
