// Package studycache keeps a device-local cache of study sets within a
// byte budget, a set-count cap and an item-count cap.
//
// A [Manager] owns the metadata of every cached set. Each write runs an
// eviction pass that removes the least recently opened sets, in batches,
// until all limits hold again. Pinned and archived sets are never evicted
// automatically; when they alone exceed a limit the cache stays over it.
//
// The byte budget adapts to disk pressure: when the free space reported by
// the configured [budget.FreeSpaceReader] drops below a threshold, a
// smaller budget applies. An unavailable reading leaves the normal budget
// in force.
//
// # Basic Usage
//
//	probe, _ := budget.NewDiskProbe(cacheDir)
//	store, _ := snapshot.NewFileStore(cacheDir)
//
//	m, err := studycache.New(
//	    studycache.WithFreeSpaceReader(probe),
//	    studycache.WithStore(store),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := m.Load(ctx); err != nil {
//	    return err
//	}
//
//	report, err := m.AddOrUpdateSet(ctx, studycache.SetRecord{
//	    ID:    "bio-101",
//	    Title: "Cell biology",
//	    Bytes: 12 << 20,
//	    Items: 340,
//	})
//
// The report lists any other sets the write evicted.
//
// # Concurrency
//
// All methods are safe for concurrent use. Writes are serialized with one
// another, including the eviction pass they trigger; reads share a lock
// and never observe a half-applied write.
package studycache
