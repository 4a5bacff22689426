package module

import (
	"fmt"
	"plugin"
)

// PluginSymbol is the exported symbol every module image must define:
//
//	var MonarchModule module.Image = &myModule{}
const PluginSymbol = "MonarchModule"

// PluginLoader loads module images via Go's plugin package. It is the
// Library's default Loader.
type PluginLoader struct{}

// Load opens the plugin at path and resolves its PluginSymbol export.
func (PluginLoader) Load(path string) (Image, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("module: opening plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("module: plugin %s missing symbol %s: %w", path, PluginSymbol, err)
	}
	img, ok := sym.(Image)
	if !ok {
		if ptr, ok := sym.(*Image); ok {
			return *ptr, nil
		}
		return nil, fmt.Errorf("module: plugin %s symbol %s does not implement Image", path, PluginSymbol)
	}
	return img, nil
}
