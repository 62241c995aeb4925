package svc

import "errors"

// ErrUnknownBackend: storage.backend names no registered repository.
var ErrUnknownBackend = errors.New("unknown storage backend")
