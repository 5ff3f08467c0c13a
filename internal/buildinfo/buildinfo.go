// Package buildinfo carries the product identity baked into a release:
// the short command name, the full product name, and the built-in server
// and registry defaults that apply when neither the toolkit manifest nor
// the command line overrides them.
package buildinfo

import "runtime"

const (
	// Name is the short command alias linked into cargo/bin.
	Name = "rim"

	// Product is the user-facing product name.
	Product = "Rust Installation Manager"

	// managerBase is the basename the running executable is copied to
	// inside the install root.
	managerBase = "rim-manager"

	// DefaultRustupDistServer serves rust toolchain channel manifests.
	DefaultRustupDistServer = "https://rsproxy.cn"

	// DefaultRustupUpdateRoot serves rustup-init binaries.
	DefaultRustupUpdateRoot = "https://rsproxy.cn/rustup"

	// DefaultCargoRegistryName and DefaultCargoRegistryIndex define the
	// registry written into the cargo config when nothing else is given.
	DefaultCargoRegistryName  = "rsproxy"
	DefaultCargoRegistryIndex = "sparse+https://rsproxy.cn/index/"
)

// ExeSuffix is ".exe" on Windows and empty elsewhere.
func ExeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// ManagerExe returns the filename of the manager binary inside the
// install root, e.g. "rim-manager" or "rim-manager.exe".
func ManagerExe() string {
	return managerBase + ExeSuffix()
}

// ManagerIconName returns the icon filename written next to the manager.
func ManagerIconName() string {
	return managerBase + ".ico"
}
