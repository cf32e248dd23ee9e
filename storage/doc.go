// Package storage implements core.StorageService on S3 compatible object
// storage. Files the pipeline uploads live in one bucket; any other URL is
// fetched over plain HTTP.
package storage
