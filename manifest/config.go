package manifest

import (
	"strings"
)

// KVConfig is the plain-text `key = value` format used by NGDP build and
// CDN config files: one key per line, `=` separated, values often a
// space-separated list of hex hashes (e.g. "root = <hash>" or
// "encoding = <ckey-hash> <ekey-hash>"). Unlike BPSV, these files have no
// typed header — config_manager.rs's own config handling is a CLI-
// preferences TOML file, not this format, so this parser is a
// self-consistent design built directly from the key=value shape spec.md
// describes and real NGDP build config samples.
type KVConfig struct {
	order  []string
	values map[string][]string
}

// ParseKVConfig parses a build/CDN config text blob.
func ParseKVConfig(data []byte) *KVConfig {
	c := &KVConfig{values: make(map[string][]string)}
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		values := strings.Fields(parts[1])
		if _, ok := c.values[key]; !ok {
			c.order = append(c.order, key)
		}
		c.values[key] = values
	}
	return c
}

// Get returns the first value for a key, if present.
func (c *KVConfig) Get(key string) (string, bool) {
	v, ok := c.values[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// GetAll returns every space-separated value for a key.
func (c *KVConfig) GetAll(key string) []string {
	return c.values[key]
}

// Build reconstructs the key=value text form.
func (c *KVConfig) Build() []byte {
	var sb strings.Builder
	for _, k := range c.order {
		sb.WriteString(k)
		sb.WriteString(" = ")
		sb.WriteString(strings.Join(c.values[k], " "))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// BuildConfig is a typed view over a parsed build config file.
type BuildConfig struct{ *KVConfig }

func NewBuildConfig(data []byte) *BuildConfig { return &BuildConfig{ParseKVConfig(data)} }

// Root returns the root manifest's CKey (and EKey, if present).
func (b *BuildConfig) Root() []string { return b.GetAll("root") }

// Encoding returns the encoding manifest's [CKey, EKey] pair.
func (b *BuildConfig) Encoding() []string { return b.GetAll("encoding") }

// Install returns the install manifest's [CKey, EKey] pair.
func (b *BuildConfig) Install() []string { return b.GetAll("install") }

// Download returns the download manifest's [CKey, EKey] pair.
func (b *BuildConfig) Download() []string { return b.GetAll("download") }

// Size returns the size manifest's [CKey, EKey] pair.
func (b *BuildConfig) Size() []string { return b.GetAll("size") }

// BuildName returns the human-readable build name, if present.
func (b *BuildConfig) BuildName() (string, bool) { return b.Get("build-name") }

// BuildUID returns the build's product UID, if present.
func (b *BuildConfig) BuildUID() (string, bool) { return b.Get("build-uid") }

// CDNConfig is a typed view over a parsed CDN config file.
type CDNConfig struct{ *KVConfig }

func NewCDNConfig(data []byte) *CDNConfig { return &CDNConfig{ParseKVConfig(data)} }

// Archives returns the archive EKey list this CDN config references.
func (c *CDNConfig) Archives() []string { return c.GetAll("archives") }

// ArchiveGroup returns the archive-group EKey, if present.
func (c *CDNConfig) ArchiveGroup() (string, bool) { return c.Get("archive-group") }

// FileIndex returns the loose file index EKey, if present.
func (c *CDNConfig) FileIndex() (string, bool) { return c.Get("file-index") }

// PatchArchives returns the patch archive EKey list.
func (c *CDNConfig) PatchArchives() []string { return c.GetAll("patch-archives") }

// PatchArchiveGroup returns the patch archive-group EKey, if present.
func (c *CDNConfig) PatchArchiveGroup() (string, bool) { return c.Get("patch-archive-group") }

// BuildInfo is the installation-root `.build.info` file: a BPSV table of
// per-branch build references. Grounded on
// original_source/crates/cascette-client-storage/src/build_info.rs.
type BuildInfo struct {
	rows []map[string]string
}

// NewBuildInfo wraps an already-parsed `.build.info` BPSV table (see the
// bpsv package) in typed per-branch accessors.
func NewBuildInfo(rows []map[string]string) *BuildInfo {
	return &BuildInfo{rows: rows}
}

// ActiveEntry returns the first row with Active == "1".
func (bi *BuildInfo) ActiveEntry() (BuildInfoEntry, bool) {
	for _, r := range bi.rows {
		if r["Active"] == "1" {
			return BuildInfoEntry{r}, true
		}
	}
	return BuildInfoEntry{}, false
}

// Entries returns every row.
func (bi *BuildInfo) Entries() []BuildInfoEntry {
	out := make([]BuildInfoEntry, len(bi.rows))
	for i, r := range bi.rows {
		out[i] = BuildInfoEntry{r}
	}
	return out
}

// BuildInfoEntry is one `.build.info` row.
type BuildInfoEntry struct{ row map[string]string }

func (e BuildInfoEntry) Branch() string     { return e.row["Branch"] }
func (e BuildInfoEntry) IsActive() bool     { return e.row["Active"] == "1" }
func (e BuildInfoEntry) BuildKey() string   { return e.row["Build Key"] }
func (e BuildInfoEntry) CDNKey() string     { return e.row["CDN Key"] }
func (e BuildInfoEntry) InstallKey() string { return e.row["Install Key"] }
func (e BuildInfoEntry) CDNPath() string    { return e.row["CDN Path"] }
func (e BuildInfoEntry) Product() string    { return e.row["Product"] }
func (e BuildInfoEntry) Version() string    { return e.row["Version"] }
func (e BuildInfoEntry) CDNHosts() []string { return strings.Fields(e.row["CDN Hosts"]) }
func (e BuildInfoEntry) CDNServers() []string {
	return strings.Fields(e.row["CDN Servers"])
}
