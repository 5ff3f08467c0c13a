package installer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// envVar is one persistent environment variable. Merge marks values
// that combine with whatever the user already has (no_proxy).
type envVar struct {
	Key   string
	Value string
	Merge bool
}

// envVars lists the variables an installation persists, deduplicated
// with the last write winning.
func (i *Installation) envVars() []envVar {
	vars := []envVar{
		{Key: "CARGO_HOME", Value: i.CargoHome()},
		{Key: "RUSTUP_HOME", Value: i.RustupHome()},
		{Key: "RUSTUP_DIST_SERVER", Value: i.distServer},
		{Key: "RUSTUP_UPDATE_ROOT", Value: i.updateRoot},
	}
	if p := i.manifest.Proxy; p != nil {
		if p.HTTP != "" {
			vars = append(vars, envVar{Key: "http_proxy", Value: p.HTTP})
		}
		if p.HTTPS != "" {
			vars = append(vars, envVar{Key: "https_proxy", Value: p.HTTPS})
		}
		if p.NoProxy != "" {
			vars = append(vars, envVar{Key: "no_proxy", Value: p.NoProxy, Merge: true})
		}
	}
	return dedupeEnv(vars)
}

// dedupeEnv drops duplicate keys. The last value wins but keeps the
// first occurrence's position, so the write order stays stable.
func dedupeEnv(vars []envVar) []envVar {
	final := make(map[string]envVar, len(vars))
	for _, v := range vars {
		final[v.Key] = v
	}
	seen := make(map[string]bool, len(vars))
	out := make([]envVar, 0, len(final))
	for _, v := range vars {
		if seen[v.Key] {
			continue
		}
		seen[v.Key] = true
		out = append(out, final[v.Key])
	}
	return out
}

// configureEnv applies the variables to the current process and, when
// persist is set, to the user's shell environment.
func (i *Installation) configureEnv(persist bool) error {
	for _, v := range i.envVars() {
		value := v.Value
		if v.Merge {
			value = mergeList(value, os.Getenv(v.Key))
		}
		if err := os.Setenv(v.Key, value); err != nil {
			return errors.Wrapf(err, "failed to set %s", v.Key)
		}
	}
	if err := prependProcessPath(i.cargoBin()); err != nil {
		return err
	}
	if !persist {
		return nil
	}
	if err := i.persistEnvVars(i.envVars()); err != nil {
		return err
	}
	return i.persistAddPath(i.cargoBin())
}

// proxyEnv renders the proxy variables as KEY=VALUE pairs for child
// processes.
func (i *Installation) proxyEnv() []string {
	p := i.manifest.Proxy
	if p == nil {
		return nil
	}
	var env []string
	if p.HTTP != "" {
		env = append(env, "http_proxy="+p.HTTP)
	}
	if p.HTTPS != "" {
		env = append(env, "https_proxy="+p.HTTPS)
	}
	if p.NoProxy != "" {
		env = append(env, "no_proxy="+mergeList(p.NoProxy, os.Getenv("no_proxy")))
	}
	return env
}

// mergeList joins comma lists, keeping the existing entries first and
// skipping configured entries already present.
func mergeList(value, existing string) string {
	if existing == "" {
		return value
	}
	if value == "" {
		return existing
	}
	have := make(map[string]bool)
	for _, item := range strings.Split(existing, ",") {
		have[strings.TrimSpace(item)] = true
	}
	out := []string{existing}
	for _, item := range strings.Split(value, ",") {
		if !have[strings.TrimSpace(item)] {
			out = append(out, item)
		}
	}
	return strings.Join(out, ",")
}

// prependProcessPath puts dir first on the current process PATH.
func prependProcessPath(dir string) error {
	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if entry == dir {
			return nil
		}
	}
	return os.Setenv("PATH", dir+string(os.PathListSeparator)+current)
}

// removeProcessPath drops dir from the current process PATH.
func removeProcessPath(dir string) error {
	entries := filepath.SplitList(os.Getenv("PATH"))
	kept := entries[:0]
	for _, entry := range entries {
		if entry != dir {
			kept = append(kept, entry)
		}
	}
	return os.Setenv("PATH", strings.Join(kept, string(os.PathListSeparator)))
}
