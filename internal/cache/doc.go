// Package cache provides a generic LRU cache that releases what it evicts.
//
// The VM keeps uploaded program textures here, keyed by program hash, so
// that loading the same program twice reuses one texture. Textures are GPU
// resources: the eviction callback destroys them when they fall out of the
// cache or when the cache is purged.
//
//	textures := cache.New[string, Texture](8, func(_ string, t Texture) {
//		t.Destroy()
//	})
//	tex, hit, err := textures.GetOrCreate(hash, upload)
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
// The eviction callback runs with the cache lock held and must not call
// back into the cache.
package cache
