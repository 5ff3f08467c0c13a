package manifest

import "runtime"

// HostTriple returns the Rust target triple of the running host, or an
// empty string for platforms no toolkit targets. An unknown host still
// receives the tools declared under "all".
func HostTriple() string {
	switch runtime.GOOS {
	case "windows":
		switch runtime.GOARCH {
		case "amd64":
			return "x86_64-pc-windows-msvc"
		case "arm64":
			return "aarch64-pc-windows-msvc"
		}
	case "linux":
		switch runtime.GOARCH {
		case "amd64":
			return "x86_64-unknown-linux-gnu"
		case "arm64":
			return "aarch64-unknown-linux-gnu"
		case "loong64":
			return "loongarch64-unknown-linux-gnu"
		}
	case "darwin":
		switch runtime.GOARCH {
		case "amd64":
			return "x86_64-apple-darwin"
		case "arm64":
			return "aarch64-apple-darwin"
		}
	}
	return ""
}

func isWindows() bool { return runtime.GOOS == "windows" }

func isDarwin() bool { return runtime.GOOS == "darwin" }
