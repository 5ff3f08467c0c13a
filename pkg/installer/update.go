package installer

import (
	"context"

	"github.com/apex/log"

	"github.com/rust-install/rim/pkg/manifest"
)

// Master progress deltas of an update run; prep + toolchain + two tool
// phases sum to 100.
const (
	spanUpdatePrep      = 10
	spanUpdateToolchain = 60
	spanUpdateTools     = 15
)

// Update reinstalls the selected components on top of an existing
// installation: refresh the captured manifest, re-apply the environment
// to the current process only, update the toolchain, then re-run both
// tool phases. Tools already recorded are reinstalled; that is the
// user-initiated update semantic.
func (i *Installation) Update(ctx context.Context, components []*manifest.Component) (*Report, error) {
	if err := i.loadRecord(); err != nil {
		return nil, err
	}

	toolchainComponents, tools := splitSelection(components)
	if err := rejectConflicts(tools); err != nil {
		return nil, err
	}
	ordered, err := sortByRequires(tools)
	if err != nil {
		return nil, err
	}
	early, late := splitPhases(ordered)

	report := &Report{}
	i.handler.MasterStart("updating " + i.title())

	if err := i.writeManifestCopy(); err != nil {
		return nil, err
	}
	i.record.CloneToolkitMetaFromManifest(i.manifest)
	if err := i.record.Write(); err != nil {
		report.add(CategoryStep, "install record", err)
	}
	if err := i.configureEnv(false); err != nil {
		report.add(CategoryStep, "environment", err)
	}
	i.handler.MasterUpdate(spanUpdatePrep)

	rustOK := true
	if len(toolchainComponents) > 0 || hasToolchainProfile(components) {
		rustOK = i.installToolchain(ctx, report, toolchainComponents, true)
	}
	i.handler.MasterUpdate(spanUpdateToolchain)
	if ctx.Err() != nil {
		log.Warn("update cancelled, finished components are kept")
		return report, nil
	}

	i.installTools(ctx, report, early, spanUpdateTools)
	if rustOK {
		i.installTools(ctx, report, late, spanUpdateTools)
	} else {
		i.skipTools(report, late, "the toolchain failed to update")
		i.handler.MasterUpdate(spanUpdateTools)
	}

	i.handler.MasterFinish(i.title() + " updated")
	return report, nil
}

func hasToolchainProfile(components []*manifest.Component) bool {
	for _, comp := range components {
		if comp.Type == manifest.ComponentToolchainProfile {
			return true
		}
	}
	return false
}
