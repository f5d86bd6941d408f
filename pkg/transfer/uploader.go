package transfer

import (
	"context"
	"io"
	"mime"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

const defaultContentType = "application/octet-stream"

// FileUploader sends one local file's content to the data service as a
// chunked upload session.
type FileUploader struct {
	client    *ddsapi.Client
	fs        afero.Fs
	chunkSize int64
	watcher   Watcher
}

func NewFileUploader(client *ddsapi.Client, appFs afero.Fs, chunkSize int64,
	watcher Watcher) *FileUploader {

	return &FileUploader{client: client, fs: appFs, chunkSize: chunkSize, watcher: watcher}
}

// Upload sends node's content as a new file under parent, or as a new
// version of the file named by existingFileID when it is non-empty. The
// returned file carries the version the service assigned.
func (u *FileUploader) Upload(ctx context.Context, projectID string, node *tree.Node,
	parent ddsapi.ResourceRef, existingFileID string) (*ddsapi.File, error) {

	upload, err := u.sendContent(ctx, projectID, node)
	if err != nil {
		return nil, errors.WithContext(err, "upload "+node.Path)
	}

	if existingFileID != "" {
		return u.client.UpdateFileUpload(ctx, existingFileID, upload.ID)
	}
	return u.client.CreateFile(ctx, parent, upload.ID)
}

// sendContent runs the chunk protocol: open an upload session, register
// and send each chunk, then report the whole-file hash to close the
// session. Chunks are numbered from zero. An empty file still sends one
// empty chunk so the session has content to commit.
func (u *FileUploader) sendContent(ctx context.Context, projectID string,
	node *tree.Node) (*ddsapi.Upload, error) {

	contentType := mime.TypeByExtension(filepath.Ext(node.Name))
	if contentType == "" {
		contentType = defaultContentType
	}

	upload, err := u.client.CreateUpload(ctx, projectID, node.Name, contentType, node.Size,
		ddsapi.HashPair{Value: node.Hash, Algorithm: ddsapi.HashAlgorithmMD5})
	if err != nil {
		return nil, err
	}

	f, err := u.fs.Open(node.LocalPath)
	if err != nil {
		return nil, errors.WithContext(err, "open for upload")
	}
	defer f.Close()

	buf := make([]byte, u.chunkSize)
	for number := 0; ; number++ {
		n, err := io.ReadFull(f, buf)
		if err == io.EOF && number > 0 {
			break
		}
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, errors.WithContext(err, "read chunk")
		}

		if err := u.sendChunk(ctx, upload.ID, number, buf[:n]); err != nil {
			return nil, err
		}
		u.watcher.SentBytes(int64(n))
		if n < len(buf) {
			break
		}
	}

	hash := ddsapi.HashPair{Algorithm: ddsapi.HashAlgorithmMD5, Value: node.Hash}
	if err := u.client.CompleteUpload(ctx, upload.ID, hash); err != nil {
		return nil, err
	}
	return upload, nil
}

func (u *FileUploader) sendChunk(ctx context.Context, uploadID string, number int,
	chunk []byte) error {

	hash := ddsapi.HashPair{
		Algorithm: ddsapi.HashAlgorithmMD5,
		Value:     tree.HashBytes(chunk),
	}
	newDescriptor := func(ctx context.Context) (*ddsapi.ExternalDescriptor, error) {
		return u.client.CreateUploadURL(ctx, uploadID, number, int64(len(chunk)), hash)
	}

	descriptor, err := newDescriptor(ctx)
	if err != nil {
		return err
	}
	return u.client.SendExternal(ctx, descriptor, chunk, newDescriptor)
}
