package installer

import (
	"context"

	"github.com/apex/log"

	"github.com/rust-install/rim/pkg/manifest"
	"github.com/rust-install/rim/pkg/toolchain"
)

// Master progress deltas shared by both component operations.
const (
	spanComponentToolchain = 30
	spanComponentTools     = 70
)

// AddComponents installs extra components into an existing installation:
// toolchain components go through rustup, tools through the regular
// install path in requirement order.
func (i *Installation) AddComponents(ctx context.Context, components []*manifest.Component) (*Report, error) {
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

	report := &Report{}
	i.handler.MasterStart("installing components")

	if err := i.configureEnv(false); err != nil {
		report.add(CategoryStep, "environment", err)
	}

	if len(toolchainComponents) > 0 {
		channel := i.installedChannel()
		log.Infof("adding toolchain components to '%s'", channel)
		rustup := toolchain.New(i.toolchainConfig())
		if err := rustup.AddComponents(ctx, toolchainComponents); err != nil {
			report.add(CategoryRust, channel, err)
		} else {
			i.record.AddRustRecord(channel, toolchainComponents)
			if err := i.record.Write(); err != nil {
				report.add(CategoryStep, "install record", err)
			}
		}
	}
	i.handler.MasterUpdate(spanComponentToolchain)
	if ctx.Err() != nil {
		log.Warn("cancelled, finished components are kept")
		return report, nil
	}

	i.installTools(ctx, report, ordered, spanComponentTools)

	i.handler.MasterFinish("components installed")
	return report, nil
}

// RemoveComponents removes components from an existing installation.
// Tools are removed before toolchain components so cargo tools still
// have a toolchain to uninstall against.
func (i *Installation) RemoveComponents(ctx context.Context, components []*manifest.Component) (*Report, error) {
	if err := i.loadRecord(); err != nil {
		return nil, err
	}

	toolchainComponents, tools := splitSelection(components)

	report := &Report{}
	i.handler.MasterStart("removing components")

	i.uninstallTools(ctx, report, i.uninstallOrder(toolNamesOf(tools)), spanComponentTools)
	if ctx.Err() != nil {
		log.Warn("cancelled, the remaining components are kept")
		return report, nil
	}

	if len(toolchainComponents) > 0 {
		channel := i.installedChannel()
		log.Infof("removing toolchain components from '%s'", channel)
		rustup := toolchain.New(i.toolchainConfig())
		if err := rustup.RemoveComponents(ctx, toolchainComponents); err != nil {
			report.add(CategoryRust, channel, err)
		} else {
			i.record.RemoveToolchainComponents(toolchainComponents)
			if err := i.record.Write(); err != nil {
				report.add(CategoryStep, "install record", err)
			}
		}
	}
	i.handler.MasterUpdate(spanComponentToolchain)

	i.handler.MasterFinish("components removed")
	return report, nil
}

// installedChannel prefers the recorded channel over the manifest's;
// the record tracks what rustup actually put on disk.
func (i *Installation) installedChannel() string {
	if i.record != nil && i.record.Rust != nil && i.record.Rust.Channel != "" {
		return i.record.Rust.Channel
	}
	return i.manifest.Toolchain.Channel
}
