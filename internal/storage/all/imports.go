// Package all wires the built-in document-store backends into the storage
// factory. It exists purely for side effects: a blank import runs each
// backend's init registration, making these kinds available at runtime:
//
//   - "mongo"    (sensoringest/internal/storage/mongo)
//   - "postgres" (sensoringest/internal/storage/postgres)
//   - "sqlite"   (sensoringest/internal/storage/sqlite)
//
// Typical usage in a wiring layer such as cmd/ingest:
//
//	import _ "sensoringest/internal/storage/all"
//
// Binaries wanting a subset of backends can blank-import the individual
// backend packages instead.
package all

import (
	_ "sensoringest/internal/storage/mongo"
	_ "sensoringest/internal/storage/postgres"
	_ "sensoringest/internal/storage/sqlite"
)
