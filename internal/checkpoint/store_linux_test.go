//go:build linux

package checkpoint

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestWriteExtractArchiveRoundTrip(t *testing.T) {
	entries := []captureEntry{
		{name: "metadata.json", data: []byte(`{"id":"x"}`)},
		{name: "route.txt", data: []byte("default via 10.0.0.1 dev eth0\n")},
	}
	var buf bytes.Buffer
	require.NoError(t, writeArchive(&buf, entries))

	dir := t.TempDir()
	files, err := extractArchive(writeTempFile(t, buf.Bytes()), dir)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"id":"x"}`), files["metadata.json"])
	require.Contains(t, string(files["route.txt"]), "default via")
}

func TestExtractArchiveRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	evil := []byte("pwned")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../../etc/passwd", Size: int64(len(evil))}))
	_, err := tw.Write(evil)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dir := t.TempDir()
	_, err = extractArchive(writeTempFile(t, buf.Bytes()), dir)
	require.ErrorIs(t, err, ErrUnsafeExtraction)
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestParseLinkNames(t *testing.T) {
	dump := []byte("1: lo: <LOOPBACK> mtu 65536\n    link/loopback\n2: eth0: <BROADCAST> mtu 1500\n    link/ether\n")
	names := parseLinkNames(dump)
	require.Equal(t, []string{"lo", "eth0"}, names)
}
