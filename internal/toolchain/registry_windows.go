//go:build windows

package toolchain

import (
	"golang.org/x/sys/windows/registry"
)

// classesRootRegistry reads toolchain registrations from HKEY_CLASSES_ROOT,
// where each Visual Studio generation registers its DTE class.
type classesRootRegistry struct{}

func (classesRootRegistry) HasKey(name string) bool {
	key, err := registry.OpenKey(registry.CLASSES_ROOT, name, registry.QUERY_VALUE)
	if err != nil {
		return false
	}
	key.Close()
	return true
}

func defaultRegistry() RegistryProbe {
	return classesRootRegistry{}
}
