// Package workspace manages the persistent build root holding the source
// checkout, the native build tree and the auxiliary-library cache.
//
// Persistent mode uses a fixed root (e.g. ~/.blenderpy) that survives
// across installation attempts, so a second run reuses the checkout and
// cache instead of re-downloading. Ephemeral mode creates a timestamped
// root suitable for throwaway builds and tests.
package workspace
