package watch

import (
	"github.com/fsnotify/fsnotify"
)

// Change is a net filesystem change routed to the index. It is either Created or Removed;
// an in-place modification arrives as Removed followed by Created.
type Change interface {
	ChangedPath() string
	kind() changeKind
}

type Created struct {
	Path string
}

type Removed struct {
	Path string
}

func (c Created) ChangedPath() string { return c.Path }
func (c Removed) ChangedPath() string { return c.Path }

func (Created) kind() changeKind { return kindCreated }
func (Removed) kind() changeKind { return kindRemoved }

type changeKind int

const (
	kindCreated changeKind = iota + 1
	kindRemoved
)

func (k changeKind) String() string {
	if k == kindCreated {
		return "created"
	}
	return "removed"
}

// Translate maps one notifier event to zero or more changes. A single event may carry several ops.
func Translate(event fsnotify.Event) []Change {
	if event.Name == "" {
		return nil
	}

	removed := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	created := event.Has(fsnotify.Create)
	modified := event.Has(fsnotify.Write) && !removed && !created

	var changes []Change
	if removed || modified {
		changes = append(changes, Removed{Path: event.Name})
	}
	if created || modified {
		changes = append(changes, Created{Path: event.Name})
	}
	return changes
}

// withPath rebuilds c for a different path, keeping its kind.
func withPath(c Change, path string) Change {
	switch c.(type) {
	case Created:
		return Created{Path: path}
	case Removed:
		return Removed{Path: path}
	default:
		return c
	}
}
