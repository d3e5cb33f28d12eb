package interp

import (
	"sync"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
)

// ImportCacheItem is a lazily resolved reference to a global of a loadable module.
type ImportCacheItem struct {
	Module string
	Name   string
	// Optional items are only resolved once something else has loaded their module.
	Optional bool

	once  sync.Once
	value starlark.Value
	err   error
}

// Get resolves the item on first use. The caller must hold the lock.
// An optional item whose module isn't loaded yet resolves to nil, and is retried on the next call.
func (item *ImportCacheItem) Get(it *Interpreter) (starlark.Value, error) {
	if item.Optional && !it.IsModuleLoaded(item.Module) {
		return nil, nil
	}
	item.once.Do(func() {
		globals, err := it.LoadModule(item.Module)
		if err != nil {
			item.err = errors.Wrapf(err, "couldn't load module %s", item.Module)
			return
		}
		value, ok := globals[item.Name]
		if !ok {
			item.err = errors.Errorf("module %s has no member %s", item.Module, item.Name)
			return
		}
		item.value = value
	})
	return item.value, item.err
}

// ImportCache holds the module references the embedding needs, so they're not looked up on every access.
type ImportCache struct {
	it *Interpreter

	Math   *ImportCacheItem
	Time   *ImportCacheItem
	JSON   *ImportCacheItem
	Struct *ImportCacheItem

	// NotebookConfig is the config of a notebook kernel host. It's never force-loaded.
	NotebookConfig *ImportCacheItem
}

func NewImportCache(it *Interpreter) *ImportCache {
	return &ImportCache{
		it:             it,
		Math:           &ImportCacheItem{Module: "math", Name: "math"},
		Time:           &ImportCacheItem{Module: "time", Name: "time"},
		JSON:           &ImportCacheItem{Module: "json", Name: "json"},
		Struct:         &ImportCacheItem{Module: "struct", Name: "struct"},
		NotebookConfig: &ImportCacheItem{Module: "notebook", Name: "config", Optional: true},
	}
}

// Standard returns the standard modules keyed by their predeclared names.
func (cache *ImportCache) Standard() (starlark.StringDict, error) {
	out := starlark.StringDict{}
	for _, item := range []*ImportCacheItem{cache.Math, cache.Time, cache.JSON, cache.Struct} {
		value, err := item.Get(cache.it)
		if err != nil {
			return nil, err
		}
		out[item.Name] = value
	}
	return out, nil
}

// IsNotebook reports whether a notebook kernel host has been loaded and configured a kernel.
func (cache *ImportCache) IsNotebook() (bool, error) {
	config, err := cache.NotebookConfig.Get(cache.it)
	if err != nil || config == nil {
		return false, err
	}
	switch config := config.(type) {
	case starlark.Mapping:
		_, found, err := config.Get(starlark.String("kernel"))
		if err != nil {
			return false, nil
		}
		return found, nil
	case starlark.HasAttrs:
		value, err := config.Attr("kernel")
		return err == nil && value != nil, nil
	}
	return false, nil
}
