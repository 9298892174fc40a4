// Package scope maps logical scope names to index locations and filesystem paths to their owning scope.
package scope

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	indexDirName = "index"
	appsDirName  = "apps"
	iconsDirName = "icons"

	// AppsScopeName is the name of the application scope.
	AppsScopeName = "Applications"
	// BundleExtension marks a directory-structured application package.
	BundleExtension = ".app"
)

type Kind int

const (
	KindFiles Kind = iota
	KindApplications
)

func (k Kind) String() string {
	if k == KindApplications {
		return "applications"
	}
	return "files"
}

// Resolver is pure path arithmetic under the cache root.
type Resolver struct {
	cacheRoot string
}

func NewResolver(cacheRoot string) Resolver {
	return Resolver{cacheRoot: filepath.Clean(cacheRoot)}
}

func (r Resolver) CacheRoot() string {
	return r.cacheRoot
}

func (r Resolver) IndexDir(scopeName string) string {
	return filepath.Join(r.cacheRoot, indexDirName, scopeName)
}

func (r Resolver) AppsIndexDir() string {
	return filepath.Join(r.cacheRoot, appsDirName)
}

func (r Resolver) IconsDir() string {
	return filepath.Join(r.cacheRoot, iconsDirName)
}

type Scope struct {
	Name     string
	Root     string
	IndexDir string
	Kind     Kind
}

// Catalog is the fixed set of scopes known to the process. Order matters: the primary scope comes
// first, then the secondary scopes in configured order, then applications.
type Catalog struct {
	scopes []Scope
}

type CatalogOptions struct {
	HomeDir      string
	AppsRoot     string
	PrimaryScope string
	ScopeFolders []string
}

func NewCatalog(resolver Resolver, opts CatalogOptions) *Catalog {
	catalog := &Catalog{}
	seen := make(map[string]struct{})

	add := func(name string, root string, indexDir string, kind Kind) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		catalog.scopes = append(catalog.scopes, Scope{Name: name, Root: Canonical(root), IndexDir: indexDir, Kind: kind})
	}

	add(opts.PrimaryScope, filepath.Join(opts.HomeDir, opts.PrimaryScope), resolver.IndexDir(opts.PrimaryScope), KindFiles)
	for _, folder := range opts.ScopeFolders {
		add(folder, filepath.Join(opts.HomeDir, folder), resolver.IndexDir(folder), KindFiles)
	}
	if opts.AppsRoot != "" {
		add(AppsScopeName, opts.AppsRoot, resolver.AppsIndexDir(), KindApplications)
	}

	return catalog
}

// Primary is the scope that is crawled synchronously on the first search.
func (c *Catalog) Primary() Scope {
	return c.scopes[0]
}

// Files returns the file scopes, primary first.
func (c *Catalog) Files() []Scope {
	var files []Scope
	for _, s := range c.scopes {
		if s.Kind == KindFiles {
			files = append(files, s)
		}
	}
	return files
}

func (c *Catalog) Apps() (Scope, bool) {
	for _, s := range c.scopes {
		if s.Kind == KindApplications {
			return s, true
		}
	}
	return Scope{}, false
}

func (c *Catalog) ByName(name string) (Scope, bool) {
	for _, s := range c.scopes {
		if s.Name == name {
			return s, true
		}
	}
	return Scope{}, false
}

func (c *Catalog) All() []Scope {
	return append([]Scope(nil), c.scopes...)
}

// Owner returns the scope whose root contains path. When roots nest, the deepest root wins.
func (c *Catalog) Owner(path string) (Scope, bool) {
	candidates := append([]Scope(nil), c.scopes...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].Root) > len(candidates[j].Root)
	})
	for _, s := range candidates {
		if IsWithin(s.Root, path) {
			return s, true
		}
	}
	return Scope{}, false
}

// IsWithin reports whether path is root or lies below it, respecting path boundaries
// ("/a/bc" is not within "/a/b").
func IsWithin(root string, path string) bool {
	if root == "" {
		return false
	}
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// Canonical makes path absolute and resolves symlinks when it exists.
func Canonical(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// IsBundle reports whether name carries the application bundle extension.
func IsBundle(name string) bool {
	return strings.EqualFold(filepath.Ext(name), BundleExtension)
}

// DirExists is a small helper shared by the watcher and the bootstrapper.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
