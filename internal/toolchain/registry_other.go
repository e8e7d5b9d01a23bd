//go:build !windows

package toolchain

// emptyRegistry is the non-Windows registry reader: no toolchain classes
// are ever registered, which is correct because only the Windows family
// consults the registry.
type emptyRegistry struct{}

func (emptyRegistry) HasKey(string) bool { return false }

func defaultRegistry() RegistryProbe {
	return emptyRegistry{}
}
