// Package archive uploads archived study sets to an OCI registry.
//
// Archiving is local first: [github.com/meigma/studycache.Manager.ArchiveSet]
// marks the set exempt from eviction, and the caller then hands the set to
// a [Dispatcher], which uploads it in the background without the caller
// waiting for, or verifying, the result.
//
// Each set becomes one OCI artifact of type [ArtifactType]: a JSON config
// blob with the set metadata, a single content layer and an image
// manifest tagged with [Tag] of the set id. Tags carry a digest suffix, so
// ids that sanitize alike still get distinct tags.
//
//	target, _ := archive.NewRemoteTarget("registry.example.com/study/sets")
//	up, _ := archive.NewUploader(target)
//	src, _ := archive.OpenDirSource(contentDir)
//	d := archive.NewDispatcher(ctx, up, src)
//	defer d.Close()
//
//	if err := m.ArchiveSet(ctx, id); err == nil {
//	    rec, _ := m.Get(id)
//	    d.Enqueue(rec)
//	}
package archive
