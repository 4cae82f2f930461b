package storageprovider

import (
	"context"
	"errors"
	"io"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/gsoxley/OpenMDAO/internal/storageutil"
)

// Blob implements storageutil.ObjectHandler on top of a gocloud bucket,
// which covers file://, gs:// and s3:// bucket URLs.
type Blob struct {
	Bucket *blob.Bucket
}

// OpenBucket opens the bucket behind the given URL.
func OpenBucket(ctx context.Context, url string) (*Blob, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Blob{Bucket: bucket}, nil
}

func (b *Blob) Close() error {
	return b.Bucket.Close()
}

// Put writes a file to the storage provider with name being the path.
func (b *Blob) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return b.Bucket.NewWriter(ctx, name, nil)
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Blob) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	r, err := b.Bucket.NewReader(ctx, name, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return r, nil
}

// List returns the object names under the given prefix, in lexical order.
func (b *Blob) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	it := b.Bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

// ListStale returns the names of objects under the given prefix whose
// last modification lies before the cutoff.
func (b *Blob) ListStale(ctx context.Context, prefix string, cutoff time.Time) ([]string, error) {
	var names []string
	it := b.Bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir || !obj.ModTime.Before(cutoff) {
			continue
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

// Delete removes the object with the given name.
func (b *Blob) Delete(ctx context.Context, name string) error {
	return b.Bucket.Delete(ctx, name)
}
