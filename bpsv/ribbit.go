package bpsv

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionsEntry is one row of a Ribbit/TACT `versions` response: the
// active build/cdn config per region. Grounded on
// original_source/tact-client/src/response_types.rs's VersionEntry.
type VersionsEntry struct {
	Region        string
	BuildConfig   string
	CDNConfig     string
	KeyRing       string // empty if absent
	BuildID       uint32
	VersionsName  string
	ProductConfig string
}

// CDNsEntry is one row of a Ribbit/TACT `cdns` response: a named CDN with
// its host/server lists. Grounded on response_types.rs's CdnEntry.
type CDNsEntry struct {
	Name       string
	Path       string
	Hosts      []string
	Servers    []string
	ConfigPath string
}

// BGDLEntry is one row of a Ribbit/TACT `bgdl` (background download)
// response. Grounded on response_types.rs's BgdlEntry.
type BGDLEntry struct {
	Region            string
	BuildConfig       string
	CDNConfig         string
	InstallBGDLConfig string // empty if absent
	GameBGDLConfig    string // empty if absent
}

func requireField(row map[string]string, fields []Field, name string) (string, error) {
	if fieldIndex(fields, name) < 0 {
		return "", fmt.Errorf("bpsv: missing field %q", name)
	}
	return row[name], nil
}

func spaceList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// DecodeVersions shapes a parsed `versions` table into typed rows.
func DecodeVersions(t *Table) ([]VersionsEntry, error) {
	var out []VersionsEntry
	for _, row := range t.Rows() {
		region, err := requireField(row, t.Fields, "Region")
		if err != nil {
			return nil, err
		}
		buildConfig, err := requireField(row, t.Fields, "BuildConfig")
		if err != nil {
			return nil, err
		}
		cdnConfig, err := requireField(row, t.Fields, "CDNConfig")
		if err != nil {
			return nil, err
		}
		productConfig, err := requireField(row, t.Fields, "ProductConfig")
		if err != nil {
			return nil, err
		}
		versionsName, err := requireField(row, t.Fields, "VersionsName")
		if err != nil {
			return nil, err
		}
		buildIDStr, err := requireField(row, t.Fields, "BuildId")
		if err != nil {
			return nil, err
		}
		buildID, err := strconv.ParseUint(buildIDStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bpsv: invalid BuildId %q: %w", buildIDStr, err)
		}

		out = append(out, VersionsEntry{
			Region:        region,
			BuildConfig:   buildConfig,
			CDNConfig:     cdnConfig,
			KeyRing:       row["KeyRing"],
			BuildID:       uint32(buildID),
			VersionsName:  versionsName,
			ProductConfig: productConfig,
		})
	}
	return out, nil
}

// DecodeCDNs shapes a parsed `cdns` table into typed rows. Hosts and
// Servers are space-separated lists in the wire format.
func DecodeCDNs(t *Table) ([]CDNsEntry, error) {
	var out []CDNsEntry
	for _, row := range t.Rows() {
		name, err := requireField(row, t.Fields, "Name")
		if err != nil {
			return nil, err
		}
		path, err := requireField(row, t.Fields, "Path")
		if err != nil {
			return nil, err
		}
		hosts, err := requireField(row, t.Fields, "Hosts")
		if err != nil {
			return nil, err
		}
		configPath, err := requireField(row, t.Fields, "ConfigPath")
		if err != nil {
			return nil, err
		}

		out = append(out, CDNsEntry{
			Name:       name,
			Path:       path,
			Hosts:      spaceList(hosts),
			Servers:    spaceList(row["Servers"]),
			ConfigPath: configPath,
		})
	}
	return out, nil
}

// DecodeBGDL shapes a parsed `bgdl` table into typed rows.
func DecodeBGDL(t *Table) ([]BGDLEntry, error) {
	var out []BGDLEntry
	for _, row := range t.Rows() {
		region, err := requireField(row, t.Fields, "Region")
		if err != nil {
			return nil, err
		}
		buildConfig, err := requireField(row, t.Fields, "BuildConfig")
		if err != nil {
			return nil, err
		}
		cdnConfig, err := requireField(row, t.Fields, "CDNConfig")
		if err != nil {
			return nil, err
		}

		out = append(out, BGDLEntry{
			Region:            region,
			BuildConfig:       buildConfig,
			CDNConfig:         cdnConfig,
			InstallBGDLConfig: row["InstallBGDLConfig"],
			GameBGDLConfig:    row["GameBGDLConfig"],
		})
	}
	return out, nil
}
