package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/levyline/taxflow/pkg/api"
)

// Archive keeps terminal executions in a blob bucket after they leave the
// execution store, supporting S3, GCS, Azure Blob Storage, local files, and
// memory buckets
type Archive struct {
	bucket *blob.Bucket
	prefix string
}

// OpenArchive opens the bucket at bucketURL
func OpenArchive(
	ctx context.Context, bucketURL, prefix string,
) (*Archive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return NewArchive(bucket, prefix), nil
}

// NewArchive wraps an open bucket
func NewArchive(bucket *blob.Bucket, prefix string) *Archive {
	return &Archive{bucket: bucket, prefix: prefix}
}

func (a *Archive) Put(ctx context.Context, ex *api.Execution) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, a.keyFor(ex.ID), data, &blob.WriterOptions{
		ContentType: "application/json",
	})
}

func (a *Archive) Get(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", api.ErrExecutionNotFound, id)
		}
		return nil, err
	}

	var ex api.Execution
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

func (a *Archive) Delete(ctx context.Context, id api.ExecutionID) error {
	err := a.bucket.Delete(ctx, a.keyFor(id))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (a *Archive) Close() error {
	return a.bucket.Close()
}

func (a *Archive) keyFor(id api.ExecutionID) string {
	return a.prefix + string(id) + ".json"
}
