package records

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is used when creating output directories.
const DefaultDirCreationPerm = 0755

// LockRetryDelay is the polling period while waiting for another process to release an output file.
var LockRetryDelay = 500 * time.Millisecond

// WriteFileAtomic writes filePath with the given function.
//
// The content is written to filePath+".tmp" and then atomically moved to filePath, so readers never
// see a partial file. A filePath+".lock" file coordinates concurrent writers of the same path, across
// processes.
func WriteFileAtomic(ctx context.Context, filePath string, write func(w *bufio.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}

	lockPath := filePath + ".lock"
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLockContext(ctx, LockRetryDelay)
	if err != nil {
		return errors.Wrapf(err, "while trying to lock %q", lockPath)
	}
	if !locked {
		return errors.Errorf("failed to lock %q", lockPath)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			klog.Errorf("Error unlocking file %q: %v", lockPath, err)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			klog.Warningf("error removing lock file %q: %v", lockPath, err)
		}
	}()

	tmpPath := filePath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "creating temporary file %q", tmpPath)
	}
	tmpFileClosed := false
	defer func() {
		// If we exit with an error, make sure to close and remove the unfinished temporary file.
		if !tmpFileClosed {
			if err := tmpFile.Close(); err != nil {
				klog.Errorf("Failed closing temporary file %q: %v", tmpPath, err)
			}
			if err := os.Remove(tmpPath); err != nil {
				klog.Errorf("Failed removing temporary file %q: %v", tmpPath, err)
			}
		}
	}()

	w := bufio.NewWriter(tmpFile)
	if err := write(w); err != nil {
		return errors.WithMessagef(err, "while writing %q", filePath)
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "flushing %q", tmpPath)
	}
	tmpFileClosed = true
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to close temporary file %q", tmpPath)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to move %q to %q", tmpPath, filePath)
	}
	return nil
}
