//go:build cgo && sqlite3_cgo

package db

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
	dsnParams  = "_txlock=immediate&mode=rwc&_busy_timeout=5000"
)
