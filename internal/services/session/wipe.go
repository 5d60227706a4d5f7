package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/services/workers"
)

// wipeWorkers bounds the parallel overwrite fan-out. Browser workdirs can
// hold hundreds of small cache files; wiping them serially dominates
// teardown time.
const wipeWorkers = 4

// wipeTree overwrites every regular file under root with random bytes sized
// to the original length, for the given number of passes. Files are wiped in
// parallel; errors are accumulated, not fatal - the caller removes the tree
// afterwards regardless and reports partial failure through the cleanup
// flag.
func wipeTree(root string, passes int, logger arbor.ILogger) error {
	var paths []string
	var firstErr error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil && firstErr == nil {
		firstErr = walkErr
	}

	pool := workers.NewPool(wipeWorkers, logger)
	pool.Start()
	for _, path := range paths {
		path := path
		_ = pool.Submit(func(ctx context.Context) error {
			return wipeFile(path, passes)
		})
	}
	pool.Wait()

	if errs := pool.Errors(); len(errs) > 0 && firstErr == nil {
		firstErr = errs[0]
	}
	return firstErr
}

func wipeFile(path string, passes int) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, size)
	for pass := 0; pass < passes; pass++ {
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate wipe data: %w", err)
		}
		if _, err := f.WriteAt(buf, 0); err != nil {
			return fmt.Errorf("failed to overwrite %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync %s: %w", path, err)
		}
	}

	return nil
}
