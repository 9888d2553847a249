// Package storage provides the optional send-log persistence layer.
//
// Every job that reaches a terminal status can be appended as one SendRecord,
// so a batch's outcome survives the process. It currently supports:
//   - "file": dependency-free append-only JSON Lines
//   - "sqlite": SQLite database file (optional build tag)
package storage
