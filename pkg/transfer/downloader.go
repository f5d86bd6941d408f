package transfer

import (
	"context"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// Ranges smaller than this aren't worth splitting across workers.
const minRangeBytes = 20 * 1024 * 1024

// FileDownloader fetches one remote file's content to the local disk.
type FileDownloader struct {
	client  *ddsapi.Client
	fs      afero.Fs
	workers int
	watcher Watcher
}

func NewFileDownloader(client *ddsapi.Client, appFs afero.Fs, workers int,
	watcher Watcher) *FileDownloader {

	return &FileDownloader{client: client, fs: appFs, workers: workers, watcher: watcher}
}

// Download writes the current version of the remote file node to destPath.
// Content lands in a part file first: it is pre-sized, byte ranges are
// fetched and written at their own offsets, and the result is verified
// against the node's hash before being renamed into place. A failure never
// leaves a partial file at destPath.
func (d *FileDownloader) Download(ctx context.Context, node *tree.Node, destPath string) error {
	partPath := destPath + ".ddspart"
	if err := d.fetchRanges(ctx, node, partPath); err != nil {
		d.fs.Remove(partPath)
		return errors.WithContext(err, "download "+node.Path)
	}

	if node.Hash != "" {
		hash, err := tree.HashFile(d.fs, partPath)
		if err != nil {
			d.fs.Remove(partPath)
			return err
		}
		if hash != node.Hash {
			d.fs.Remove(partPath)
			return errors.New("downloaded content of " + node.Path +
				" does not match its reported hash")
		}
	}
	if err := d.fs.Rename(partPath, destPath); err != nil {
		return errors.WithContext(err, "move file into place")
	}
	return nil
}

func (d *FileDownloader) fetchRanges(ctx context.Context, node *tree.Node,
	destPath string) error {

	f, err := d.fs.Create(destPath)
	if err != nil {
		return errors.WithContext(err, "create file")
	}
	defer f.Close()
	if err := f.Truncate(node.Size); err != nil {
		return errors.WithContext(err, "size file")
	}
	if node.Size == 0 {
		return nil
	}

	descriptor, err := d.client.GetFileURL(ctx, node.RemoteID)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.workers)
	for _, r := range splitRanges(node.Size, d.workers) {
		r := r
		// Refreshing mutates the descriptor, so each range works on its
		// own copy.
		rangeDescriptor := *descriptor
		group.Go(func() error {
			err := d.client.FetchExternal(groupCtx, &rangeDescriptor, r.start, r.length, f,
				func(ctx context.Context) (*ddsapi.ExternalDescriptor, error) {
					return d.client.GetFileURL(ctx, node.RemoteID)
				})
			if err == nil {
				d.watcher.SentBytes(r.length)
			}
			return err
		})
	}
	return group.Wait()
}

type byteRange struct {
	start  int64
	length int64
}

// splitRanges divides size bytes into at most workers ranges, each at
// least minRangeBytes long (except the final remainder).
func splitRanges(size int64, workers int) []byteRange {
	rangeSize := size / int64(workers)
	if rangeSize < minRangeBytes {
		rangeSize = minRangeBytes
	}

	var ranges []byteRange
	for start := int64(0); start < size; start += rangeSize {
		length := rangeSize
		if start+length > size {
			length = size - start
		}
		ranges = append(ranges, byteRange{start: start, length: length})
	}
	return ranges
}
