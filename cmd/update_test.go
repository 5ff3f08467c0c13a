package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/manifest"
)

func TestUpdateSelection(t *testing.T) {
	record := fingerprint.New(t.TempDir())
	record.AddRustRecord("stable", []string{"clippy"})
	record.AddToolRecord("spotter", fingerprint.ToolRecord{Kind: manifest.KindCargoTool})

	components := []*manifest.Component{
		{Name: "minimal", Type: manifest.ComponentToolchainProfile, Required: true},
		{Name: "clippy", Type: manifest.ComponentToolchainComponent, Optional: true},
		{Name: "rust-docs", Type: manifest.ComponentToolchainComponent, Optional: true},
		{Name: "spotter", Type: manifest.ComponentTool, Optional: true},
		{Name: "editor", Type: manifest.ComponentTool},
	}

	selection := updateSelection(components, record)
	assert.Equal(t, []string{"minimal", "clippy", "spotter", "editor"}, componentNames(selection))
}
