package tool

import (
	"context"
	"net/url"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/archive"
	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
)

// stopKeyword ends the solo-directory descent after extraction: a
// directory named bin is payload, not an archive wrapper.
const stopKeyword = "bin"

// reextractLimit bounds nested-archive recovery. Two levels covers every
// package seen in the wild (an inner tarball inside a zip); anything
// deeper is treated as the payload itself.
const reextractLimit = 2

// InstallFromInfo resolves one manifest entry to a payload, classifies
// it and installs it, returning the record to fingerprint.
func InstallFromInfo(ctx context.Context, env Environment, name string, info *manifest.ToolInfo) (fingerprint.ToolRecord, error) {
	src := info.Source
	if src == nil {
		return fingerprint.ToolRecord{}, errors.Errorf("tool %q cannot be installed because it lacks a package source", name)
	}

	switch src.Kind {
	case manifest.SourceVersion:
		return CargoTool(name, []string{name, "--version", src.Version}).Install(ctx, env, info)
	case manifest.SourceGit:
		args := []string{"--git", src.Git}
		if src.Branch != "" {
			args = append(args, "--branch", src.Branch)
		}
		if src.Tag != "" {
			args = append(args, "--tag", src.Tag)
		}
		if src.Rev != "" {
			args = append(args, "--rev", src.Rev)
		}
		return CargoTool(name, args).Install(ctx, env, info)
	case manifest.SourcePath:
		return InstallFromPath(ctx, env, name, src.Path, info)
	case manifest.SourceURL:
		return downloadAndInstall(ctx, env, name, src.URL, info)
	case manifest.SourceRestricted:
		if src.Source == "" {
			return fingerprint.ToolRecord{}, errors.Errorf("tool %q needs a user-provided source before it can be installed", name)
		}
		if fsutil.Exists(src.Source) {
			return InstallFromPath(ctx, env, name, src.Source, info)
		}
		parsed, err := url.Parse(src.Source)
		if err != nil || parsed.Scheme == "" {
			return fingerprint.ToolRecord{}, errors.Errorf("%q is not an existing path nor a valid URL", src.Source)
		}
		return downloadAndInstall(ctx, env, name, src.Source, info)
	}
	return fingerprint.ToolRecord{}, errors.Errorf("tool %q has an unsupported source", name)
}

// InstallFromPath installs the payload at path: directories and plain
// files directly, archives after unpacking. An explicit kind on the
// manifest entry overrides classification.
func InstallFromPath(ctx context.Context, env Environment, name, path string, info *manifest.ToolInfo) (fingerprint.ToolRecord, error) {
	var temps []string
	defer func() {
		for _, dir := range temps {
			_ = fsutil.Remove(dir)
		}
	}()

	payload, err := resolvePayload(ctx, env, name, path, &temps)
	if err != nil {
		return fingerprint.ToolRecord{}, err
	}

	var t *Tool
	if info != nil && info.Kind != manifest.KindUnspecified {
		t = New(name, info.Kind, payload)
	} else if t, err = FromPath(name, payload); err != nil {
		return fingerprint.ToolRecord{}, err
	}
	return t.Install(ctx, env, info)
}

func downloadAndInstall(ctx context.Context, env Environment, name, rawURL string, info *manifest.ToolInfo) (fingerprint.ToolRecord, error) {
	filename, err := downloadFilename(name, info, rawURL)
	if err != nil {
		return fingerprint.ToolRecord{}, err
	}

	tempDir, err := env.CreateTempDir("download")
	if err != nil {
		return fingerprint.ToolRecord{}, err
	}
	defer func() { _ = fsutil.Remove(tempDir) }()

	dest := filepath.Join(tempDir, filename)
	if err := env.DownloadOpt(name).Download(ctx, rawURL, dest); err != nil {
		return fingerprint.ToolRecord{}, err
	}
	return InstallFromPath(ctx, env, name, dest, info)
}

// resolvePayload turns path into what will actually be installed.
// Archives are unpacked past wrapper directories; when unpacking yields
// a single file that is itself an archive, it gets unpacked again, a
// bounded number of times.
func resolvePayload(ctx context.Context, env Environment, name, path string, temps *[]string) (string, error) {
	if !fsutil.Exists(path) {
		return "", errors.Errorf("payload %q of tool %q does not exist", path, name)
	}
	if fsutil.IsDir(path) || !archive.IsSupported(path) {
		return path, nil
	}

	current := path
	for attempt := 0; ; attempt++ {
		ex, err := archive.Load(current)
		if err != nil {
			return "", err
		}
		extractDir, err := env.CreateTempDir(name)
		if err != nil {
			return "", err
		}
		*temps = append(*temps, extractDir)

		payload, err := ex.ExtractThenSkipSoloDir(ctx, extractDir, stopKeyword, env.Progress())
		if err != nil {
			return "", err
		}
		if fsutil.IsDir(payload) {
			return payload, nil
		}
		if !archive.IsSupported(payload) || attempt >= reextractLimit {
			return payload, nil
		}
		current = payload
	}
}
