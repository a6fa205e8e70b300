// Package loader reads knowledge graph snapshots from disk, repairs
// missing project assignments, validates referential integrity, and
// materializes the indexed SQLite realization.
package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	ekberrors "ekb/internal/errors"
	"ekb/internal/logging"
	"ekb/internal/model"
	"ekb/internal/storage"
)

// Report summarizes one load run.
type Report struct {
	RunID         string    `json:"runId"`
	SnapshotPath  string    `json:"snapshotPath"`
	SchemaVersion string    `json:"schemaVersion,omitempty"`
	PayloadSHA256 string    `json:"payloadSha256"`
	Nodes         int       `json:"nodes"`
	Edges         int       `json:"edges"`
	Excerpts      int       `json:"excerpts"`
	Projects      []string  `json:"projects"`
	Warnings      []string  `json:"warnings,omitempty"`
	LoadedAt      time.Time `json:"loadedAt"`
}

// ReadSnapshot loads and parses a snapshot file. Files ending in .gz
// are decompressed transparently.
func ReadSnapshot(path string) (*model.Snapshot, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ekberrors.New(ekberrors.SnapshotMissing,
				fmt.Sprintf("snapshot %s does not exist", path), err)
		}
		return nil, "", ekberrors.New(ekberrors.StorageUnavailable,
			fmt.Sprintf("cannot open snapshot %s", path), err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, "", ekberrors.New(ekberrors.SnapshotInvalid,
				fmt.Sprintf("snapshot %s is not valid gzip", path), err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", ekberrors.New(ekberrors.SnapshotInvalid,
			fmt.Sprintf("cannot read snapshot %s", path), err)
	}
	snap, err := model.ParseSnapshot(data)
	if err != nil {
		return nil, "", ekberrors.New(ekberrors.SnapshotInvalid,
			fmt.Sprintf("snapshot %s failed to parse", path), err)
	}

	sum := sha256.Sum256(data)
	return snap, hex.EncodeToString(sum[:]), nil
}

// InferProject guesses the owning project from a node ID's naming
// convention. Returns "" when no convention matches.
func InferProject(nodeID string) string {
	switch {
	case strings.HasPrefix(nodeID, "PROJECT-A:"):
		return "PROJECT-A"
	case strings.HasPrefix(nodeID, "PROJECT-B:"):
		return "PROJECT-B"
	case strings.Contains(nodeID, "DMA-REQ-") || strings.Contains(nodeID, "DMA-DEC-"):
		return "PROJECT-A"
	case strings.Contains(nodeID, "AXI-REQ-") || strings.Contains(nodeID, "AXI-DEC-"):
		return "PROJECT-B"
	}
	return ""
}

// Normalize fills missing project assignments from ID conventions and
// from the owning node, and returns validation warnings. The snapshot
// is modified in place.
func Normalize(snap *model.Snapshot) []string {
	var warnings []string

	seen := map[string]bool{}
	projectOf := map[string]string{}
	for i := range snap.Graph.Nodes {
		n := &snap.Graph.Nodes[i]
		if seen[n.ID] {
			warnings = append(warnings, fmt.Sprintf("duplicate node id %s", n.ID))
		}
		seen[n.ID] = true
		if n.Project == "" {
			n.Project = InferProject(n.ID)
		}
		projectOf[n.ID] = n.Project
	}

	for _, e := range snap.Graph.Edges {
		if _, ok := projectOf[e.Source]; !ok {
			warnings = append(warnings, fmt.Sprintf("edge %s references unknown source %s", e.ID, e.Source))
		}
		if _, ok := projectOf[e.Target]; !ok {
			warnings = append(warnings, fmt.Sprintf("edge %s references unknown target %s", e.ID, e.Target))
		}
	}

	for i := range snap.Excerpts {
		x := &snap.Excerpts[i]
		owner, ok := projectOf[x.NodeID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("excerpt %s references unknown node %s", x.ID, x.NodeID))
			continue
		}
		if x.Project == "" {
			x.Project = owner
		}
	}
	return warnings
}

// Projects lists the distinct project IDs in the snapshot, sorted.
func Projects(snap *model.Snapshot) []string {
	set := map[string]struct{}{}
	for _, n := range snap.Graph.Nodes {
		if n.Project != "" {
			set[n.Project] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Load reads a snapshot and replaces the contents of the SQLite
// knowledge base with it.
func Load(path, dbPath string, log *logging.Logger) (*Report, error) {
	if log == nil {
		log = logging.NewNop()
	}

	snap, payloadHash, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	warnings := Normalize(snap)
	for _, w := range warnings {
		log.Warn("snapshot validation", map[string]any{"detail": w})
	}

	db, err := storage.Open(dbPath, log)
	if err != nil {
		return nil, ekberrors.New(ekberrors.StorageUnavailable,
			fmt.Sprintf("cannot open knowledge base at %s", dbPath), err)
	}
	defer db.Close()

	if err := storage.ReplaceSnapshot(db, snap); err != nil {
		return nil, ekberrors.New(ekberrors.StorageUnavailable, "snapshot import failed", err)
	}

	report := &Report{
		RunID:         uuid.New().String(),
		SnapshotPath:  path,
		SchemaVersion: snap.SchemaVersion,
		PayloadSHA256: payloadHash,
		Nodes:         len(snap.Graph.Nodes),
		Edges:         len(snap.Graph.Edges),
		Excerpts:      len(snap.Excerpts),
		Projects:      Projects(snap),
		Warnings:      warnings,
		LoadedAt:      time.Now().UTC(),
	}
	log.Info("snapshot loaded", map[string]any{
		"runId":    report.RunID,
		"nodes":    report.Nodes,
		"edges":    report.Edges,
		"excerpts": report.Excerpts,
		"db":       dbPath,
	})
	return report, nil
}
