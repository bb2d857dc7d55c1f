package loader

import "github.com/Sternrassler/collection-loader/pkg/collection"

// Renderer receives the loader's output. Calls are made without holding the
// loader's lock, so a Renderer may call back into the Loader.
type Renderer interface {
	// OnFullReplace discards previously rendered items and shows items.
	OnFullReplace(items []collection.Item)

	// OnAppend adds items after the ones already shown.
	OnAppend(items []collection.Item)

	// OnShowMoreAvailability shows or hides the "show more" control.
	OnShowMoreAvailability(available bool)

	// OnLoadError reports that the initial page could not be loaded.
	OnLoadError(message string)
}

// NopRenderer discards all output.
type NopRenderer struct{}

func (NopRenderer) OnFullReplace([]collection.Item) {}
func (NopRenderer) OnAppend([]collection.Item) {}
func (NopRenderer) OnShowMoreAvailability(bool) {}
func (NopRenderer) OnLoadError(string) {}

// RendererFuncs adapts plain functions to Renderer. Nil fields are ignored.
type RendererFuncs struct {
	FullReplace          func(items []collection.Item)
	Append               func(items []collection.Item)
	ShowMoreAvailability func(available bool)
	LoadError            func(message string)
}

func (f RendererFuncs) OnFullReplace(items []collection.Item) {
	if f.FullReplace != nil {
		f.FullReplace(items)
	}
}

func (f RendererFuncs) OnAppend(items []collection.Item) {
	if f.Append != nil {
		f.Append(items)
	}
}

func (f RendererFuncs) OnShowMoreAvailability(available bool) {
	if f.ShowMoreAvailability != nil {
		f.ShowMoreAvailability(available)
	}
}

func (f RendererFuncs) OnLoadError(message string) {
	if f.LoadError != nil {
		f.LoadError(message)
	}
}

// event is a deferred Renderer call.
type event func(Renderer)

func fullReplace(items []collection.Item) event {
	return func(r Renderer) { r.OnFullReplace(items) }
}

func appendItems(items []collection.Item) event {
	return func(r Renderer) { r.OnAppend(items) }
}

func availability(available bool) event {
	return func(r Renderer) { r.OnShowMoreAvailability(available) }
}

func loadError(message string) event {
	return func(r Renderer) { r.OnLoadError(message) }
}
