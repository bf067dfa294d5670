//go:build linux

package checkpoint

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"netopt/internal/clock"
)

// linuxStore is the filesystem-backed checkpoint store, archives living at
// <stateRoot>/checkpoints/<id>.tar.gz per spec §6.
type linuxStore struct {
	log       *slog.Logger
	ctx       context.Context
	stateRoot string
	retention int
}

// New returns the Linux Store implementation rooted at stateRoot (typically
// /var/lib/netopt). retention <= 0 uses the documented default of 10.
func New(ctx context.Context, log *slog.Logger, stateRoot string, retention int) Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &linuxStore{log: log, ctx: ctx, stateRoot: stateRoot, retention: retention}
}

func (s *linuxStore) checkpointDir() string {
	return filepath.Join(s.stateRoot, "checkpoints")
}

func (s *linuxStore) archivePath(id string) string {
	return filepath.Join(s.checkpointDir(), id+".tar.gz")
}

func (s *linuxStore) Create(name, description string) (string, error) {
	if err := os.MkdirAll(s.checkpointDir(), 0o700); err != nil {
		return "", fmt.Errorf("%w: creating checkpoint dir: %v", ErrCheckpoint, err)
	}

	id := makeID(name, time.Now())
	meta := Metadata{
		ID:           id,
		Name:         name,
		Description:  description,
		CreatedAtUTC: time.Now().UTC(),
		Hostname:     hostname(),
		Kernel:       kernelVersion(s.ctx),
		UID:          currentUID(),
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: marshaling metadata: %v", ErrCheckpoint, err)
	}

	entries := captureAll(s.ctx, s.log)
	entries = append(entries, captureEntry{name: "metadata.json", data: metaJSON})

	path := s.archivePath(id)
	tmp, err := os.CreateTemp(s.checkpointDir(), ".checkpoint-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp archive: %v", ErrCheckpoint, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeArchive(tmp, entries); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: writing archive: %v", ErrCheckpoint, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: closing archive: %v", ErrCheckpoint, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("%w: finalizing archive: %v", ErrCheckpoint, err)
	}

	s.log.Info("checkpoint: created", "id", id, "entries", len(entries))

	if err := s.Prune(); err != nil {
		s.log.Warn("checkpoint: retention prune after create failed", "error", err)
	}
	return id, nil
}

func writeArchive(w io.Writer, entries []captureEntry) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o600, Size: int64(len(e.data))}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(e.data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// Restore extracts id into a fresh, owner-exclusive temp directory,
// validates metadata.json before any mutation, then re-applies what's safe
// to re-apply (spec §4.7 restore scope): sysctl keys re-applied key by
// key, qdiscs torn down to kernel defaults, everything else logged as
// advisory only.
func (s *linuxStore) Restore(id string) error {
	path := s.archivePath(id)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	tmpDir, err := os.MkdirTemp("", "netopt-checkpoint-restore-*")
	if err != nil {
		return fmt.Errorf("checkpoint: creating extraction dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	files, err := extractArchive(path, tmpDir)
	if err != nil {
		return fmt.Errorf("checkpoint: extracting: %w", err)
	}

	metaData, ok := files["metadata.json"]
	if !ok {
		return ErrIntegrity
	}
	var meta Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	if sysctlDump, ok := files["sysctl.txt"]; ok {
		s.restoreSysctl(sysctlDump)
	}
	if linkDump, ok := files["link.txt"]; ok {
		s.resetQdiscs(linkDump)
	}
	for name := range files {
		if strings.HasPrefix(name, "ethtool_") {
			s.log.Info("checkpoint: interface feature restoration is advisory only; review ethtool captures manually", "entry", name)
		}
	}

	s.log.Info("checkpoint: restored", "id", id, "created_at", meta.CreatedAtUTC)
	return nil
}

// restoreSysctl re-applies every net.* key found in a `sysctl -a` dump.
// Keys the running kernel rejects (removed/renamed across versions) are
// logged and skipped, never fatal to the overall restore.
func (s *linuxStore) restoreSysctl(dump []byte) {
	for _, line := range strings.Split(string(dump), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !strings.HasPrefix(key, "net.") {
			continue
		}
		if _, err := clock.Run(s.ctx, captureTimeout, "sysctl", "-w", fmt.Sprintf("%s=%s", key, value)); err != nil {
			s.log.Debug("checkpoint: restoring sysctl key failed, skipping", "key", key, "error", err)
		}
	}
}

// resetQdiscs tears down qdiscs on every interface named in a `ip -d link
// show` dump, restoring kernel defaults rather than replaying the captured
// qdisc verbatim (spec: exact replay isn't attempted since tc syntax
// varies across kernel versions).
func (s *linuxStore) resetQdiscs(linkDump []byte) {
	for _, link := range parseLinkNames(linkDump) {
		if _, err := clock.Run(s.ctx, captureTimeout, "tc", "qdisc", "del", "dev", link, "root"); err != nil {
			s.log.Debug("checkpoint: qdisc reset skipped (likely already default)", "link", link, "error", err)
		}
	}
}

func parseLinkNames(dump []byte) []string {
	var names []string
	for _, line := range strings.Split(string(dump), "\n") {
		if !strings.Contains(line, ": ") || strings.HasPrefix(line, " ") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		names = append(names, strings.TrimSpace(parts[1]))
	}
	return names
}

func (s *linuxStore) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.checkpointDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: listing: %w", err)
	}

	var metas []Metadata
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".tar.gz")
		meta, err := s.readMetadata(id)
		if err != nil {
			s.log.Warn("checkpoint: skipping unreadable archive during list", "id", id, "error", err)
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAtUTC.Before(metas[j].CreatedAtUTC) })
	return metas, nil
}

func (s *linuxStore) readMetadata(id string) (Metadata, error) {
	tmpDir, err := os.MkdirTemp("", "netopt-checkpoint-meta-*")
	if err != nil {
		return Metadata{}, err
	}
	defer os.RemoveAll(tmpDir)

	files, err := extractArchive(s.archivePath(id), tmpDir)
	if err != nil {
		return Metadata{}, err
	}
	data, ok := files["metadata.json"]
	if !ok {
		return Metadata{}, ErrIntegrity
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (s *linuxStore) Delete(id string) error {
	path := s.archivePath(id)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return os.Remove(path)
}

// Prune keeps the newest s.retention checkpoints, FIFO by creation time.
func (s *linuxStore) Prune() error {
	metas, err := s.List()
	if err != nil {
		return err
	}
	if len(metas) <= s.retention {
		return nil
	}
	toDelete := metas[:len(metas)-s.retention]
	for _, m := range toDelete {
		if err := s.Delete(m.ID); err != nil {
			s.log.Warn("checkpoint: prune failed to delete entry", "id", m.ID, "error", err)
		}
	}
	return nil
}

// extractArchive safely extracts a gzip+tar archive into dir, which must
// already be a freshly created, owner-exclusive directory under the OS
// temp root. Every entry name is validated to stay within dir — no
// absolute paths, no "..": an archive can only have been written by this
// package, but restore must not trust that invariant blindly.
func extractArchive(path, dir string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		clean := filepath.Clean(hdr.Name)
		if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafeExtraction, hdr.Name)
		}
		dest := filepath.Join(dir, clean)
		if !strings.HasPrefix(dest, filepath.Clean(dir)+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafeExtraction, hdr.Name)
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, err
		}
		if err := os.WriteFile(dest, buf.Bytes(), 0o600); err != nil {
			return nil, err
		}
		files[clean] = buf.Bytes()
	}
	return files, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func kernelVersion(ctx context.Context) string {
	res, err := clock.Run(ctx, captureTimeout, "uname", "-r")
	if err != nil || res.ExitCode != 0 {
		return "unknown"
	}
	return strings.TrimSpace(res.Stdout)
}

func currentUID() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Uid
}
