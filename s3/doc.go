// Package s3 provides a datasource.Source backed by an object in Amazon S3.
//
// # Usage
//
//	src, err := s3.New(ctx, "my-bucket", "reports/2024.csv", true,
//	    s3.WithRegion("us-east-1"),
//	)
//
//	h, err := src.OpenBytes(ctx, false)
//
// # Features
//
//   - Concurrent ranged downloads for large objects
//   - CRC32C integrity checksums on every upload
//   - Multipart uploads once content crosses the configured part size
//   - Text handles with forced character encodings
//
// Objects must already exist; opening a missing key fails with a storage
// error wrapping datasource.ErrNotFound, for read-only and writable
// handles alike.
package s3
