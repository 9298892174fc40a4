package icon

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const icnsExtension = ".icns"

var conventionalIconNames = []string{"AppIcon.icns", "app.icns", "icon.icns"}

// FindBundleIcon locates the icon container of an application bundle: the conventional names
// first, then any .icns file in Contents/Resources, in name order.
func FindBundleIcon(bundle string) (string, bool) {
	resources := filepath.Join(bundle, "Contents", "Resources")

	for _, name := range conventionalIconNames {
		candidate := filepath.Join(resources, name)
		if isRegularFile(candidate) {
			return candidate, true
		}
	}

	entries, err := os.ReadDir(resources)
	if err != nil {
		return "", false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if strings.EqualFold(filepath.Ext(entry.Name()), icnsExtension) {
			candidate := filepath.Join(resources, entry.Name())
			if isRegularFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
