// Package repository holds the typed managers for the persisted
// collections: tables, bills and their archive, menu availability, custom
// menu items and settings.  Each repository owns the read-modify-write
// cycle of its collection.  Read methods never fail: a store error is
// logged and an empty collection returned.  Write methods return errors so
// callers can offer a retry.
//
// The sentinel values below let handlers map failures to status codes.
package repository

import "errors"

// ErrTableNotFound is returned when no table has the requested id.
var ErrTableNotFound = errors.New("table not found")

// ErrInvalidTable is returned when a table update carries an unusable id
// or status.
var ErrInvalidTable = errors.New("invalid table")

// ErrBillNotFound is returned when no bill has the requested id.
var ErrBillNotFound = errors.New("bill not found")

// ErrMenuItemNotFound is returned when a custom menu item does not exist.
var ErrMenuItemNotFound = errors.New("menu item not found")

// ErrInvalidMenuItem is returned when a custom menu item is missing its
// name or has a negative price.
var ErrInvalidMenuItem = errors.New("invalid menu item")

// ErrInvalidPIN is returned when a manager PIN is malformed or does not
// match.
var ErrInvalidPIN = errors.New("invalid manager PIN")
