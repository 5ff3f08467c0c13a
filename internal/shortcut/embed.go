package shortcut

import _ "embed"

// desktopTemplate is the freedesktop.org entry written on Linux. The
// leading comment marks the file as ours so uninstall will not delete a
// user-authored entry with the same name.
//
//go:embed desktop.tmpl
var desktopTemplate string

// lnkScriptTemplate drives the WScript.Shell COM API through PowerShell to
// produce a .lnk file on Windows.
//
//go:embed shortcut.ps1.tmpl
var lnkScriptTemplate string
