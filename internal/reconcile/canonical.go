package reconcile

import "strings"

// DefaultExt is the archive suffix stripped from local names.
const DefaultExt = ".tgz"

// Canonical maps a local file name to the name it is stored under remotely:
// the trailing ext is removed, a name without it is returned unchanged.
func Canonical(name, ext string) string {
	return strings.TrimSuffix(name, ext)
}
