// Package store holds the object store backends for normalized photos.
package store

import (
	"fmt"
	"path"
	"strings"
)

// checkID rejects identifiers that could escape the store namespace.
// Identifiers are generated by the store itself, but they also arrive from
// HTTP paths.
func checkID(id string) error {
	if id == "" || strings.HasPrefix(id, ".") || path.Base(id) != id || strings.ContainsRune(id, '\\') {
		return fmt.Errorf("invalid photo id %q", id)
	}
	return nil
}
