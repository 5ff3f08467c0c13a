// Package archive unpacks the archive formats toolkit packages ship in:
// zip, 7z, tar.gz, tar.xz, bare gzip and cargo .crate files. Format
// detection prefers the filename and falls back to content sniffing, since
// download URLs do not always carry a meaningful extension.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/rust-install/rim/pkg/progress"
)

// Format represents the archive format.
type Format string

const (
	FormatZip      Format = "zip"
	FormatSevenZip Format = "7z"
	FormatTarGz    Format = "tar.gz"
	FormatTarXz    Format = "tar.xz"
	FormatTar      Format = "tar"
	FormatGz       Format = "gz"
	FormatCrate    Format = "crate"
)

// DetectFormat determines the archive format of path, first by filename,
// then by sniffing the file content when the name is inconclusive.
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(lower, ".crate"):
		return FormatCrate, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".7z"):
		return FormatSevenZip, nil
	case strings.HasSuffix(lower, ".xz"):
		return FormatTarXz, nil
	case strings.HasSuffix(lower, ".gz"):
		return sniffGzipInner(path)
	}
	return sniffFormat(path)
}

// IsSupported reports whether path looks like an archive this package can
// extract.
func IsSupported(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	_, err = DetectFormat(path)
	return err == nil
}

var (
	magicZip   = []byte{'P', 'K', 0x03, 0x04}
	magicGzip  = []byte{0x1f, 0x8b}
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicSeven = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
)

// sniffFormat inspects leading magic bytes.
func sniffFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q for sniffing", path)
	}
	defer f.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && n == 0 {
		return "", errors.Errorf("unrecognized archive format: %s", path)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicZip):
		return FormatZip, nil
	case bytes.HasPrefix(head, magicSeven):
		return FormatSevenZip, nil
	case bytes.HasPrefix(head, magicXz):
		return FormatTarXz, nil
	case bytes.HasPrefix(head, magicGzip):
		return sniffGzipInner(path)
	case isTarFile(path):
		return FormatTar, nil
	}
	return "", errors.Errorf("unrecognized archive format: %s", path)
}

// sniffGzipInner distinguishes a gzipped tarball from a bare gzipped file
// by checking for the ustar magic inside the stream.
func sniffGzipInner(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q for sniffing", path)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", errors.Wrapf(err, "%q has a .gz name but no gzip header", path)
	}
	defer gz.Close()

	head := make([]byte, 262)
	if n, _ := io.ReadFull(gz, head); n >= 262 && string(head[257:262]) == "ustar" {
		return FormatTarGz, nil
	}
	return FormatGz, nil
}

// isTarFile checks for the ustar magic at offset 257.
func isTarFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 262)
	if n, _ := io.ReadFull(f, head); n >= 262 {
		return string(head[257:262]) == "ustar"
	}
	return false
}

// Extractable is one archive ready to unpack.
type Extractable struct {
	Path   string
	Format Format
	name   string
}

// Load prepares path for extraction, detecting its format.
func Load(path string) (*Extractable, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	return LoadAs(path, format), nil
}

// LoadAs prepares path with a caller-supplied format, bypassing detection.
func LoadAs(path string, format Format) *Extractable {
	return &Extractable{
		Path:   path,
		Format: format,
		name:   filepath.Base(path),
	}
}

// ExtractTo unpacks the archive under dest, creating it if needed.
func (e *Extractable) ExtractTo(ctx context.Context, dest string, handler progress.Handler) error {
	if handler == nil {
		handler = progress.Discard{}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(err, "failed to create extraction directory")
	}

	var err error
	switch e.Format {
	case FormatZip:
		err = e.extractZip(ctx, dest, handler)
	case FormatSevenZip:
		err = e.extractSevenZip(ctx, dest, handler)
	case FormatTarGz, FormatCrate:
		err = e.extractTarCompressed(ctx, dest, handler, FormatTarGz)
	case FormatTarXz:
		err = e.extractTarCompressed(ctx, dest, handler, FormatTarXz)
	case FormatTar:
		err = e.extractTarCompressed(ctx, dest, handler, FormatTar)
	case FormatGz:
		err = e.extractGz(ctx, dest, handler)
	default:
		return errors.Errorf("unsupported archive format: %s", e.Format)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to extract %q", e.Path)
	}
	handler.Finish("")
	return nil
}

// ExtractThenSkipSoloDir unpacks the archive under dest and then descends
// past wrapper directories: while a level holds exactly one directory, the
// walk continues; a directory named stopKeyword ends the walk with its
// parent. A level holding exactly one file yields that file, which lets
// callers detect nested archives.
func (e *Extractable) ExtractThenSkipSoloDir(ctx context.Context, dest, stopKeyword string, handler progress.Handler) (string, error) {
	if err := e.ExtractTo(ctx, dest, handler); err != nil {
		return "", err
	}
	return SkipSoloDir(dest, stopKeyword)
}

// SkipSoloDir performs only the descent described on
// ExtractThenSkipSoloDir, starting from root.
func SkipSoloDir(root, stopKeyword string) (string, error) {
	current := root
	for {
		entries, err := os.ReadDir(current)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read %q", current)
		}
		if len(entries) != 1 {
			return current, nil
		}
		only := entries[0]
		if !only.IsDir() {
			return filepath.Join(current, only.Name()), nil
		}
		if stopKeyword != "" && only.Name() == stopKeyword {
			return current, nil
		}
		current = filepath.Join(current, only.Name())
	}
}

// secureJoin joins name under dest and rejects entries escaping it.
func secureJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", errors.Errorf("invalid path in archive: %s", name)
	}
	return target, nil
}

func (e *Extractable) extractZip(ctx context.Context, dest string, handler progress.Handler) error {
	reader, err := zip.OpenReader(e.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open zip archive")
	}
	defer reader.Close()

	handler.Start(fmt.Sprintf("extracting '%s'", e.name), progress.Len(int64(len(reader.File))))
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := secureJoin(dest, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, file.Mode()); err != nil {
				return errors.Wrap(err, "failed to create directory")
			}
			handler.Update(1)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(err, "failed to create parent directory")
		}
		if err := writeZipEntry(file, target); err != nil {
			return err
		}
		handler.Update(1)
	}
	return nil
}

func writeZipEntry(file *zip.File, target string) error {
	fileReader, err := file.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open file in archive")
	}
	defer fileReader.Close()

	if file.Mode()&os.ModeSymlink != 0 {
		linkTarget, err := io.ReadAll(fileReader)
		if err != nil {
			return errors.Wrap(err, "failed to read symlink entry")
		}
		_ = os.Remove(target)
		return os.Symlink(string(linkTarget), target)
	}

	targetFile, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, file.Mode())
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer targetFile.Close()

	if _, err := io.Copy(targetFile, fileReader); err != nil {
		return errors.Wrap(err, "failed to extract file")
	}
	return nil
}

func (e *Extractable) extractSevenZip(ctx context.Context, dest string, handler progress.Handler) error {
	reader, err := sevenzip.OpenReader(e.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open 7z archive")
	}
	defer reader.Close()

	var total int64
	for _, file := range reader.File {
		if !file.FileInfo().IsDir() {
			total += file.FileInfo().Size()
		}
	}
	handler.Start(fmt.Sprintf("extracting '%s'", e.name), progress.Bytes(total))

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := secureJoin(dest, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, file.Mode()); err != nil {
				return errors.Wrap(err, "failed to create directory")
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(err, "failed to create parent directory")
		}
		written, err := writeSevenZipEntry(file, target)
		if err != nil {
			return err
		}
		handler.Update(written)
	}
	return nil
}

func writeSevenZipEntry(file *sevenzip.File, target string) (int64, error) {
	fileReader, err := file.Open()
	if err != nil {
		return 0, errors.Wrap(err, "failed to open file in archive")
	}
	defer fileReader.Close()

	targetFile, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, file.Mode())
	if err != nil {
		return 0, errors.Wrap(err, "failed to create file")
	}
	defer targetFile.Close()

	written, err := io.Copy(targetFile, fileReader)
	if err != nil {
		return written, errors.Wrap(err, "failed to extract file")
	}
	return written, nil
}

// extractTarCompressed walks a tar stream behind the given compression.
// Entry counts are unknown up front, so progress is a spinner.
func (e *Extractable) extractTarCompressed(ctx context.Context, dest string, handler progress.Handler, format Format) error {
	f, err := os.Open(e.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open archive")
	}
	defer f.Close()

	var stream io.Reader = f
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "failed to create gzip reader")
		}
		defer gz.Close()
		stream = gz
	case FormatTarXz:
		xzReader, err := xz.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "failed to create xz reader")
		}
		stream = xzReader
	}

	handler.Start(fmt.Sprintf("extracting '%s'", e.name), progress.Spinner())
	return e.extractTarReader(ctx, stream, dest, handler)
}

func (e *Extractable) extractTarReader(ctx context.Context, r io.Reader, dest string, handler progress.Handler) error {
	tarReader := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read tar header")
		}

		target, err := secureJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return errors.Wrap(err, "failed to create directory")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrap(err, "failed to create parent directory")
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return errors.Wrap(err, "failed to create file")
			}
			if _, err := io.Copy(out, tarReader); err != nil {
				out.Close()
				return errors.Wrap(err, "failed to extract file")
			}
			out.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrap(err, "failed to create parent directory")
			}
			_ = os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return errors.Wrap(err, "failed to create symlink")
			}
		}
		handler.Update(1)
	}
}

// extractGz decompresses a bare gzipped file into dest, keeping the
// filename minus the .gz suffix.
func (e *Extractable) extractGz(ctx context.Context, dest string, handler progress.Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(e.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open archive")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "failed to create gzip reader")
	}
	defer gz.Close()

	name := strings.TrimSuffix(filepath.Base(e.Path), ".gz")
	if gz.Name != "" {
		name = filepath.Base(gz.Name)
	}
	target, err := secureJoin(dest, name)
	if err != nil {
		return err
	}

	handler.Start(fmt.Sprintf("extracting '%s'", e.name), progress.Spinner())
	out, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer out.Close()
	if _, err := io.Copy(out, gz); err != nil {
		return errors.Wrap(err, "failed to extract file")
	}
	return nil
}
