package storage

import "github.com/signet-ai/signet/internal/signeterr"

// ErrNotFound is returned when a requested entity does not exist. It is a
// signeterr.NotFound-coded error so callers across package boundaries can
// match on it with signeterr.Is rather than a storage-local sentinel.
var ErrNotFound = signeterr.New(signeterr.NotFound, "storage: not found")
