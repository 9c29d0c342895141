package miner

import (
	"os"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// NotifyFunc completes the ExtractorFunc contract from §6: process_file
// returns true to accept, and notify_file arrives once, asynchronously.
// Callers bind this to the controller's NotifyFile.
type NotifyFunc func(u uri.URI, err error)

// NewStatExtractor returns the minimal stat-only ExtractorFunc shipped per
// §6 so the engine is runnable end to end without a real metadata
// extractor plugged in: it records fileName/fileLastModified/isDirectory/
// parentURI and nothing else. Real extraction is still a caller-supplied
// callback; this one exists only so `fsminer start` has something to run
// out of the box.
func NewStatExtractor(notify NotifyFunc) ExtractorFunc {
	return func(u uri.URI, b *Builder, cancel *CancelToken) bool {
		go func() {
			if cancel.Cancelled() {
				notify(u, &ErrCancelled{URI: string(u)})
				return
			}
			fi, err := os.Stat(u.Path())
			if err != nil {
				if os.IsNotExist(err) {
					notify(u, &ErrNotFound{URI: string(u)})
					return
				}
				notify(u, &ErrIOPermanent{URI: string(u), Err: err})
				return
			}
			if cancel.Cancelled() {
				notify(u, &ErrCancelled{URI: string(u)})
				return
			}
			b.SetFileName(u.Name())
			b.SetLastModified(fi.ModTime())
			b.SetIsDirectory(fi.IsDir())
			b.SetParent(u.Parent())
			notify(u, nil)
		}()
		return true
	}
}
