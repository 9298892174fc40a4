package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverLayout(t *testing.T) {
	assert := require.New(t)

	resolver := NewResolver("/home/u/.cache/aleph/")
	assert.Equal("/home/u/.cache/aleph/index/Desktop", resolver.IndexDir("Desktop"))
	assert.Equal("/home/u/.cache/aleph/apps", resolver.AppsIndexDir())
	assert.Equal("/home/u/.cache/aleph/icons", resolver.IconsDir())
}

func TestIsWithin(t *testing.T) {
	assert := require.New(t)

	testCases := []struct {
		root     string
		path     string
		expected bool
	}{
		{root: "/a/b", path: "/a/b", expected: true},
		{root: "/a/b", path: "/a/b/c.txt", expected: true},
		{root: "/a/b", path: "/a/bc/c.txt", expected: false},
		{root: "/a/b/", path: "/a/b/c", expected: true},
		{root: "", path: "/a", expected: false},
	}
	for _, testCase := range testCases {
		assert.Equal(testCase.expected, IsWithin(testCase.root, testCase.path), "%s in %s", testCase.path, testCase.root)
	}
}

func TestCatalogOrderAndOwner(t *testing.T) {
	assert := require.New(t)

	home, err := filepath.EvalSymlinks(t.TempDir())
	assert.NoError(err)
	for _, dir := range []string{"Desktop", "Documents", "Library"} {
		assert.NoError(os.MkdirAll(filepath.Join(home, dir), 0755))
	}
	appsRoot := filepath.Join(home, "Library", "Apps")

	catalog := NewCatalog(NewResolver("/cache"), CatalogOptions{
		HomeDir:      home,
		AppsRoot:     appsRoot,
		PrimaryScope: "Desktop",
		ScopeFolders: []string{"Documents", "Desktop", "Library"},
	})

	var names []string
	for _, s := range catalog.All() {
		names = append(names, s.Name)
	}
	assert.Equal([]string{"Desktop", "Documents", "Library", AppsScopeName}, names)
	assert.Equal("Desktop", catalog.Primary().Name)
	assert.Len(catalog.Files(), 3)

	apps, ok := catalog.Apps()
	assert.True(ok)
	assert.Equal("/cache/apps", apps.IndexDir)

	owner, ok := catalog.Owner(filepath.Join(home, "Documents", "tax", "2024.pdf"))
	assert.True(ok)
	assert.Equal("Documents", owner.Name)
	assert.Equal("/cache/index/Documents", owner.IndexDir)

	owner, ok = catalog.Owner(filepath.Join(appsRoot, "Spotify.app"))
	assert.True(ok)
	assert.Equal(AppsScopeName, owner.Name, "nested apps root should win over Library")

	_, ok = catalog.Owner("/elsewhere/file.txt")
	assert.False(ok)
}

func TestIsBundle(t *testing.T) {
	assert := require.New(t)

	assert.True(IsBundle("Spotify.app"))
	assert.True(IsBundle("/Applications/Xcode.APP"))
	assert.False(IsBundle("app"))
	assert.False(IsBundle("notes.txt"))
}
