package loader

import "github.com/Sternrassler/collection-loader/pkg/collection"

// LoadState is the loader's view of the remote collection.
type LoadState struct {
	// Items holds every primary item received, in arrival order.
	Items []collection.Item

	// NextOffset is the offset of the next page to request.
	NextOffset int

	// Total is the collection size estimate, valid when TotalKnown.
	Total      int
	TotalKnown bool

	FetchInFlight bool

	// LastPageFull records whether the most recent non-empty page was full,
	// used for exhaustion when no total is known.
	LastPageFull bool

	// Pages counts successful page fetches.
	Pages int
}

// MoreMayExist reports whether another page may hold items.
func (s LoadState) MoreMayExist() bool {
	if s.TotalKnown {
		return len(s.Items) < s.Total
	}
	if s.Pages == 0 {
		return true
	}
	return s.LastPageFull
}

func (s LoadState) clone() LoadState {
	out := s
	out.Items = append([]collection.Item(nil), s.Items...)
	return out
}
