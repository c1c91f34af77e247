package target

import "sync"

// memoryRegistry keeps named MemoryTarget instances alive across provider
// re-initializations. terraform-plugin-testing re-creates the provider
// between test steps, and a bundle staged during plan must still be there
// at apply.
var (
	memoryRegistryMu sync.Mutex
	memoryRegistry   = make(map[string]*MemoryTarget)
)

// GetOrCreateMemoryTarget returns the MemoryTarget registered under name,
// creating it on first use.
func GetOrCreateMemoryTarget(name string) *MemoryTarget {
	memoryRegistryMu.Lock()
	defer memoryRegistryMu.Unlock()

	if t, ok := memoryRegistry[name]; ok {
		return t
	}

	t := NewMemoryTarget(name)
	memoryRegistry[name] = t
	return t
}

// ResetMemoryTargets clears the registry. Call it in test cleanup.
func ResetMemoryTargets() {
	memoryRegistryMu.Lock()
	defer memoryRegistryMu.Unlock()

	memoryRegistry = make(map[string]*MemoryTarget)
}
