//go:build !sqlite3_cgo

package db

// Pure Go driver (wasm build of sqlite), used unless sqlite3_cgo is set.
import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
