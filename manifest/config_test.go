package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKVConfigParseBuildRoundTrip(t *testing.T) {
	data := "# a comment\n" +
		"root = abcdef0123456789abcdef0123456789\n" +
		"encoding = 1111111111111111111111111111abcd 2222222222222222222222222222abcd\n" +
		"build-name = WOW-48274patch9.2.5\n"

	c := ParseKVConfig([]byte(data))

	root, ok := c.Get("root")
	require.True(t, ok)
	require.Equal(t, "abcdef0123456789abcdef0123456789", root)

	enc := c.GetAll("encoding")
	require.Equal(t, []string{"1111111111111111111111111111abcd", "2222222222222222222222222222abcd"}, enc)

	_, ok = c.Get("missing")
	require.False(t, ok)

	rebuilt := ParseKVConfig(c.Build())
	require.Equal(t, c.GetAll("root"), rebuilt.GetAll("root"))
	require.Equal(t, c.GetAll("encoding"), rebuilt.GetAll("encoding"))
}

func TestBuildConfigTypedAccessors(t *testing.T) {
	data := "root = abcdef0123456789abcdef0123456789\n" +
		"encoding = 1111111111111111111111111111abcd 2222222222222222222222222222abcd\n" +
		"install = 3333333333333333333333333333abcd 4444444444444444444444444444abcd\n" +
		"build-name = WOW-48274patch9.2.5\n" +
		"build-uid = wow\n"

	bc := NewBuildConfig([]byte(data))
	require.Equal(t, []string{"abcdef0123456789abcdef0123456789"}, bc.Root())
	require.Equal(t, []string{"1111111111111111111111111111abcd", "2222222222222222222222222222abcd"}, bc.Encoding())
	require.Equal(t, []string{"3333333333333333333333333333abcd", "4444444444444444444444444444abcd"}, bc.Install())

	name, ok := bc.BuildName()
	require.True(t, ok)
	require.Equal(t, "WOW-48274patch9.2.5", name)

	uid, ok := bc.BuildUID()
	require.True(t, ok)
	require.Equal(t, "wow", uid)
}

func TestCDNConfigTypedAccessors(t *testing.T) {
	data := "archives = aaaa000000000000000000000000 bbbb000000000000000000000000\n" +
		"archive-group = cccc000000000000000000000000\n" +
		"patch-archives = dddd000000000000000000000000\n"

	cc := NewCDNConfig([]byte(data))
	require.Equal(t, []string{"aaaa000000000000000000000000", "bbbb000000000000000000000000"}, cc.Archives())

	group, ok := cc.ArchiveGroup()
	require.True(t, ok)
	require.Equal(t, "cccc000000000000000000000000", group)

	require.Equal(t, []string{"dddd000000000000000000000000"}, cc.PatchArchives())

	_, ok = cc.FileIndex()
	require.False(t, ok)
}

func TestBuildInfoActiveEntryAndFields(t *testing.T) {
	rows := []map[string]string{
		{
			"Branch": "wow_classic", "Active": "0",
			"Build Key": "aaaa", "CDN Key": "bbbb", "Install Key": "cccc",
			"CDN Path": "tpr/wow", "Product": "wow_classic", "Version": "1.14.3.40977",
			"CDN Hosts": "cdn.blizzard.com level3.blizzard.com", "CDN Servers": "",
		},
		{
			"Branch": "wow", "Active": "1",
			"Build Key": "dddd", "CDN Key": "eeee", "Install Key": "ffff",
			"CDN Path": "tpr/wow", "Product": "wow", "Version": "9.2.5.45186",
			"CDN Hosts": "cdn.blizzard.com", "CDN Servers": "http://cdn.blizzard.com/?maxhosts=4",
		},
	}

	bi := NewBuildInfo(rows)
	require.Len(t, bi.Entries(), 2)

	active, ok := bi.ActiveEntry()
	require.True(t, ok)
	require.Equal(t, "wow", active.Branch())
	require.True(t, active.IsActive())
	require.Equal(t, "dddd", active.BuildKey())
	require.Equal(t, "9.2.5.45186", active.Version())
	require.Equal(t, []string{"cdn.blizzard.com"}, active.CDNHosts())
	require.Equal(t, []string{"http://cdn.blizzard.com/?maxhosts=4"}, active.CDNServers())
}

func TestBuildInfoNoActiveEntry(t *testing.T) {
	rows := []map[string]string{
		{"Branch": "wow_classic", "Active": "0"},
	}
	bi := NewBuildInfo(rows)
	_, ok := bi.ActiveEntry()
	require.False(t, ok)
}
