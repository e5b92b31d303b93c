// Package minio provides a datasource.Source backed by an object in MinIO
// or any S3-compatible store.
//
// MinIO is a high-performance, S3-compatible object storage system. This
// package uses the official MinIO Go client for compatibility with MinIO
// and other S3-compatible systems like Ceph, SeaweedFS, and Garage.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	src := miniosource.New(client, "my-bucket", "reports/2024.csv", true)
//	h, err := src.OpenBytes(ctx, false)
//
// # Features
//
//   - Read-only bytes handles stream straight off the object; seeks
//     translate to ranged reads instead of spooling the whole content
//   - Works with any S3-compatible storage (Ceph, Garage, SeaweedFS)
//   - Air-gap friendly (no AWS dependencies required)
//
// Text handles and writable handles spool into memory, since encoding
// validation and the close-time commit both need the full content.
package minio
