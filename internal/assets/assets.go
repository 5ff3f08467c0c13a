// Package assets carries the static files baked into the binary: the
// manager icon written into the install root and the example cargo project
// exported by try-it.
package assets

import "embed"

//go:embed rim-manager.ico
var managerIcon []byte

// exampleFS holds the try-it demo project. The all: prefix keeps the
// hidden .vscode directory in the tree.
//
//go:embed all:example
var exampleFS embed.FS

// ManagerIcon returns the .ico bytes written next to the manager binary.
func ManagerIcon() []byte {
	return managerIcon
}

// ExampleProject returns the embedded demo project rooted at "example".
func ExampleProject() embed.FS {
	return exampleFS
}
