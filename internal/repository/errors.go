package repository

import "errors"

// ErrNotFound reports that the requested record is absent. Backends translate
// their own miss signals (redis.Nil, pgx.ErrNoRows) into this sentinel so the
// use cases stay storage-agnostic.
var ErrNotFound = errors.New("repository: not found")
