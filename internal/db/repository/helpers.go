// Package repository implements the domain persistence contracts using SQLite.
package repository

import "strings"

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
