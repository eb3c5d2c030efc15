// Package device holds the camera device model and the registry of
// currently known devices.
package device

import "fmt"

// Camera describes one camera device reported by the backend.
//
// UniqueID is derived from hardware identity (vendor/product/path hash) and
// stays stable across enumerations. Index is the OS-assigned device index and
// may be reassigned between enumerations; it must never be used as a
// persistent key.
type Camera struct {
	UniqueID string `json:"unique_id"`
	Index    int    `json:"index"`
	Name     string `json:"name,omitempty"`
	VID      *int   `json:"vid,omitempty"`
	PID      *int   `json:"pid,omitempty"`
}

// String renders the camera for logs and CLI output.
func (c Camera) String() string {
	if c.Name != "" {
		return fmt.Sprintf("%s (ID: %s, Index: %d)", c.Name, c.UniqueID, c.Index)
	}
	return fmt.Sprintf("Camera %d (ID: %s)", c.Index, c.UniqueID)
}
