package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

var log = logging.Logger("cache")

// Disk is the on-disk content-addressed cache of spec §4.3.2/§6.2: files
// live under a two-level hex-prefix directory derived from the EKey, under
// a caller-chosen CDN path mirroring the publisher's own layout (e.g.
// "tpr/wow"). Existence of the file is the cache-hit signal; there is no
// TTL, since content-addressed bytes are immutable by construction.
type Disk struct {
	root    string
	cdnPath string
}

// NewDisk opens (without creating) a disk cache rooted at root, storing
// blobs under <root>/<cdnPath>/<aa>/<bb>/<hexdigest>. The parent directory
// is never assumed to exist; it is created lazily on first write.
func NewDisk(root, cdnPath string) *Disk {
	return &Disk{root: root, cdnPath: cdnPath}
}

// path returns the on-disk location for key's content blob.
func (d *Disk) path(key fingerprint.Fingerprint) string {
	hex := key.String()
	return filepath.Join(d.root, d.cdnPath, hex[0:2], hex[2:4], hex)
}

// IndexPath returns the on-disk location for key's archive index, stored
// under <root>/cdn/<aa>/<bb>/<hexdigest>.index per spec §6.2.
func (d *Disk) IndexPath(key fingerprint.Fingerprint) string {
	hex := key.String()
	return filepath.Join(d.root, "cdn", hex[0:2], hex[2:4], hex+".index")
}

// Has reports whether key's blob is present on disk.
func (d *Disk) Has(key fingerprint.Fingerprint) bool {
	_, err := os.Stat(d.path(key))
	return err == nil
}

// Open returns a reader over key's cached blob. Callers must Close it.
func (d *Disk) Open(key fingerprint.Fingerprint) (*os.File, error) {
	f, err := os.Open(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.LookupMiss(key.String())
		}
		return nil, cerrors.IOError(err)
	}
	return f, nil
}

// Size returns key's on-disk blob size, or ok=false if it is not cached.
func (d *Disk) Size(key fingerprint.Fingerprint) (size int64, ok bool) {
	info, err := os.Stat(d.path(key))
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// Write stores the bytes read from src under key. The write is atomic: the
// stream is written to a sibling temp file, fsynced, then renamed into
// place, so a concurrent reader of the same key never observes a
// half-written file (spec §4.3.2, §5 "Shared resources").
func (d *Disk) Write(key fingerprint.Fingerprint, src io.Reader) error {
	dest := d.path(key)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerrors.IOError(fmt.Errorf("cache: mkdir %s: %w", dir, err))
	}

	tmp := filepath.Join(dir, "."+key.String()+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return cerrors.IOError(fmt.Errorf("cache: create temp file: %w", err))
	}
	defer os.Remove(tmp) // no-op once the rename below succeeds

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return cerrors.IOError(fmt.Errorf("cache: write temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return cerrors.IOError(fmt.Errorf("cache: fsync temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		return cerrors.IOError(fmt.Errorf("cache: close temp file: %w", err))
	}
	if err := os.Rename(tmp, dest); err != nil {
		return cerrors.IOError(fmt.Errorf("cache: rename into place: %w", err))
	}
	log.Debugw("wrote cache blob", "key", key.String())
	return nil
}

// Clear removes every blob under the cache's CDN path, for tooling that
// needs to reset a cache root entirely.
func (d *Disk) Clear() error {
	if err := os.RemoveAll(filepath.Join(d.root, d.cdnPath)); err != nil {
		return cerrors.IOError(err)
	}
	log.Infow("cleared disk cache", "root", d.root, "cdnPath", d.cdnPath)
	return nil
}

// residencyMarkerName is the sentinel file whose presence under a cache
// root declares "this cache is managed" (spec §6.2). The core never
// consults it on the read path; it exists purely so an embedder can detect
// a foreign or unmanaged cache directory before writing into it.
const residencyMarkerName = ".residency"

// Residency is the small descriptor stored in a cache root's residency
// marker: when the root was claimed, and by which tool build. Plain
// "key=value" text rather than JSON, consistent with the rest of this
// module's text formats (BPSV, build/CDN config).
type Residency struct {
	ClaimedAtUnix int64
	ToolVersion   string
}

// WriteResidency claims root by writing its residency marker.
func WriteResidency(root string, r *Residency) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return cerrors.IOError(err)
	}
	body := fmt.Sprintf("claimed_at=%d\ntool_version=%s\n", r.ClaimedAtUnix, r.ToolVersion)
	path := filepath.Join(root, residencyMarkerName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return cerrors.IOError(err)
	}
	return nil
}

// ReadResidency reads root's residency marker, if any. ok is false when the
// root carries no marker at all (an unmanaged directory); a malformed
// marker is reported as an error rather than treated as absent.
func ReadResidency(root string) (r *Residency, ok bool, err error) {
	raw, statErr := os.ReadFile(filepath.Join(root, residencyMarkerName))
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, false, nil
		}
		return nil, false, cerrors.IOError(statErr)
	}
	res := &Residency{}
	for _, l := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		kv := strings.SplitN(l, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "claimed_at":
			n, convErr := strconv.ParseInt(kv[1], 10, 64)
			if convErr != nil {
				return nil, false, fmt.Errorf("cache: malformed residency marker: %w", convErr)
			}
			res.ClaimedAtUnix = n
		case "tool_version":
			res.ToolVersion = kv[1]
		}
	}
	return res, true, nil
}
