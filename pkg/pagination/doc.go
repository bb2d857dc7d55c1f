// Package pagination fetches single pages of the primary CMS collection.
//
// The remote list endpoint is addressed by offset and limit and may or may
// not report the collection size. FetchPage never returns a bare error or
// panics: every outcome is carried in a Result so the loader can keep its
// state consistent on failure.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(cmsClient, pagination.DefaultConfig())
//	res := fetcher.FetchPage(ctx, 0, 20)
//	if res.Err != nil {
//		// state unchanged, retry later
//	}
//	done := res.Exhausted(20)
//
// When both a reported total and a short page are available and disagree,
// the reported total wins.
package pagination
