package abfs

import "context"

// BlobHandle is a pure addressing pair {container_handle, blob_name}: no
// open file state, no position cursor (§3 Data Model). It borrows its
// container handle rather than owning a copy.
type BlobHandle struct {
	container *ContainerHandle
	name      string
}

// Container returns the handle's container.
func (b *BlobHandle) Container() *ContainerHandle { return b.container }

// Name returns the blob's name as addressed (before the container's prefix
// is applied).
func (b *BlobHandle) Name() string { return b.name }

// FullName returns the blob's fully-qualified name, with the container's
// prefix applied via addprefix.
func (b *BlobHandle) FullName() string { return b.container.AddPrefix(b.name) }

// Write uploads data as this blob's complete contents.
func (b *BlobHandle) Write(ctx context.Context, data []byte, contentType string) error {
	return b.container.WriteBlob(ctx, b.name, data, contentType)
}

// WriteString uploads a UTF-8 string as this blob's complete contents.
func (b *BlobHandle) WriteString(ctx context.Context, data string) error {
	return b.container.WriteString(ctx, b.name, data)
}

// Read downloads this blob's complete contents.
func (b *BlobHandle) Read(ctx context.Context) ([]byte, error) {
	return b.container.ReadBlob(ctx, b.name)
}

// ReadString downloads this blob's complete contents as a string.
func (b *BlobHandle) ReadString(ctx context.Context) (string, error) {
	return b.container.ReadString(ctx, b.name)
}

// Stat returns this blob's size in bytes.
func (b *BlobHandle) Stat(ctx context.Context) (int64, error) {
	return b.container.StatBlob(ctx, b.name)
}

// Exists reports whether this blob is present.
func (b *BlobHandle) Exists(ctx context.Context) (bool, error) {
	return b.container.ExistsBlob(ctx, b.name)
}

// Delete removes this blob. Deleting a nonexistent blob is not an error.
func (b *BlobHandle) Delete(ctx context.Context) error {
	return b.container.DeleteBlob(ctx, b.name)
}

// CopyTo performs a server-side copy of this blob into dst under the same
// blob name.
func (b *BlobHandle) CopyTo(ctx context.Context, dst *ContainerHandle) error {
	return b.container.CopyBlob(ctx, dst, b.name)
}

// UploadFile uploads a local file into this blob via the double-buffered
// copy pipeline.
func (b *BlobHandle) UploadFile(ctx context.Context, localPath, contentType string) error {
	return b.container.UploadFile(ctx, b.name, localPath, contentType)
}

// DownloadFile downloads this blob into a local file via the
// double-buffered copy pipeline.
func (b *BlobHandle) DownloadFile(ctx context.Context, localPath string) error {
	return b.container.DownloadFile(ctx, b.name, localPath)
}
