// Package repository defines the MySQL data access layer and the sentinel
// errors it returns. Higher layers compare against these values with
// errors.Is; any other error is an infrastructure failure.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrActiveObjectionExists is returned when a farmer already owns a pending
// or reviewed objection, whether detected by the pre-insert check or by the
// uq_objection_active_farmer unique key.
var ErrActiveObjectionExists = errors.New("farmer already has an active objection")

// ErrDuplicateCode is returned when the generated objection code collides
// with an existing one. Callers retry with a fresh code.
var ErrDuplicateCode = errors.New("objection code already exists")

// ErrNationalIDExists is returned when registering a national id twice.
var ErrNationalIDExists = errors.New("national id already registered")

// ErrStaleStatus is returned by a compare-and-set status update when the
// row no longer has the expected status (or no longer exists).
var ErrStaleStatus = errors.New("objection status changed")

const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a MySQL duplicate-entry error and,
// if so, returns the server message, which names the violated key.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return me.Message, true
	}
	return "", false
}

// isDuplicateOn reports whether err is a duplicate-entry error on the named key.
func isDuplicateOn(err error, key string) bool {
	msg, ok := duplicateKey(err)
	return ok && strings.Contains(msg, key)
}
