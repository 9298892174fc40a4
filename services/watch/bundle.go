package watch

import (
	"path/filepath"

	"github.com/meghashyamc/aleph/services/scope"
)

// resolveBundle maps a path inside an application bundle to the bundle itself. When bundles nest
// (helper apps shipped inside a main app) the outermost bundle below root wins, since that is the
// entry the application scope indexes.
func resolveBundle(root string, path string) (string, bool) {
	if !scope.IsWithin(root, path) || path == root {
		return "", false
	}

	bundle := ""
	for current := path; current != root && scope.IsWithin(root, current); current = filepath.Dir(current) {
		if scope.IsBundle(current) {
			bundle = current
		}
		if filepath.Dir(current) == current {
			break
		}
	}
	return bundle, bundle != ""
}
