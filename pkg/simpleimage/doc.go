// Package simpleimage provides a reusable library for ingesting, serving and
// removing normalized images with pluggable metadata repositories and blob
// storage backends.
//
// It exposes a single Service interface that orchestrates the transcoding
// engine, a BlobStore and a Repository. Repositories (memory, Postgres,
// MySQL, Badger) and blob stores (memory, filesystem, S3) are provided under
// subpackages.
//
// Consistency
//
// The two stores are written without a shared transaction. Ingest writes the
// blob before the record; Remove deletes the blob before the record. A crash
// between the two steps of Remove leaves a dangling record, which Fetch
// reports as ErrBlobNotFound and the admin audit can list. A failed record
// write during Ingest leaves an orphan blob that is logged but never
// reclaimed.
package simpleimage
