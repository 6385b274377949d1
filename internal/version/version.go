// ABOUTME: Version constants
// ABOUTME: Identifies product, manufacturer and release for logs
package version

const (
	// Version is the release version of the playout library.
	Version = "0.1.0"

	// Product is the product name reported in logs.
	Product = "Playout"

	// Manufacturer identifies the project.
	Manufacturer = "Resonate"
)
