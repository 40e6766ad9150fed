// ABOUTME: Version information for layercast binaries
// ABOUTME: Version can be overridden at build time with -ldflags
package version

var (
	// Version is set with -ldflags "-X .../internal/version.Version=..."
	Version = "0.3.0"

	Product      = "layercast"
	Manufacturer = "Resonate Protocol"
)

// String is the product and version for CLI banners and status hello
func String() string {
	return Product + " " + Version
}
