package bundle

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/ideas/internal/idea"
	"github.com/kokistudios/ideas/internal/store"
)

// Extension is the file suffix of an exported board.
const Extension = ".ideas"

const manifestName = "manifest.yaml"

// BundleManifest describes the contents of a .ideas bundle.
type BundleManifest struct {
	Version      string    `yaml:"version"`
	ExportedAt   time.Time `yaml:"exported_at"`
	Backend      string    `yaml:"backend"`
	StoredCount  int       `yaml:"stored_count"`
	DeletedCount int       `yaml:"deleted_count"`
	Files        []string  `yaml:"files"`
}

// Export writes the stored ideas and deleted seed ids of s to a .ideas bundle
// and returns the path written. An empty outputPath or a directory gets a
// timestamped default name. A failed export leaves no file behind.
func Export(ctx context.Context, s *idea.Store, backend, outputPath string) (path string, err error) {
	stored, err := s.Stored(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read stored ideas: %w", err)
	}
	deleted, err := s.DeletedIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read deleted ids: %w", err)
	}
	if stored == nil {
		stored = []idea.Idea{}
	}
	if deleted == nil {
		deleted = []string{}
	}

	now := time.Now().UTC()
	defaultName := fmt.Sprintf("ideas-%s%s", now.Format("20060102-150405"), Extension)
	if outputPath == "" {
		outputPath = defaultName
	}
	if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
		outputPath = filepath.Join(outputPath, defaultName)
	} else if !strings.HasSuffix(outputPath, Extension) {
		outputPath += Extension
	}

	storedData, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode stored ideas: %w", err)
	}
	deletedData, err := json.Marshal(deleted)
	if err != nil {
		return "", fmt.Errorf("failed to encode deleted ids: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{store.KeyStoredIdeas + ".json", storedData},
		{store.KeyDeletedIDs + ".json", deletedData},
	}

	manifest := BundleManifest{
		Version:      "1",
		ExportedAt:   now,
		Backend:      backend,
		StoredCount:  len(stored),
		DeletedCount: len(deleted),
	}
	for _, f := range files {
		manifest.Files = append(manifest.Files, f.name)
	}
	manifestData, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		outFile.Close()
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	if err := writeEntry(tw, manifestName, manifestData, now); err != nil {
		return "", err
	}
	for _, f := range files {
		if err := writeEntry(tw, f.name, f.data, now); err != nil {
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish gzip: %w", err)
	}
	return outputPath, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ImportResult contains information about an imported bundle.
type ImportResult struct {
	Manifest   BundleManifest
	Added      int
	Replaced   int
	Suppressed int
}

// Import reads a .ideas bundle and merges it into s. Stored ideas are
// upserted by id and deleted ids are unioned with the existing set.
func Import(ctx context.Context, s *idea.Store, bundlePath string) (*ImportResult, error) {
	manifest, contents, err := read(bundlePath)
	if err != nil {
		return nil, err
	}

	var stored []idea.Idea
	if data, ok := contents[store.KeyStoredIdeas+".json"]; ok {
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, fmt.Errorf("invalid bundle: stored ideas: %w", err)
		}
	}
	var deleted []string
	if data, ok := contents[store.KeyDeletedIDs+".json"]; ok {
		if err := json.Unmarshal(data, &deleted); err != nil {
			return nil, fmt.Errorf("invalid bundle: deleted ids: %w", err)
		}
	}

	added, replaced, suppressed := s.Merge(ctx, stored, deleted)
	if added+replaced+suppressed > 0 {
		if err := s.LastWriteError(); err != nil {
			return nil, err
		}
	}
	return &ImportResult{
		Manifest:   *manifest,
		Added:      added,
		Replaced:   replaced,
		Suppressed: suppressed,
	}, nil
}

func read(bundlePath string) (*BundleManifest, map[string][]byte, error) {
	inFile, err := os.Open(bundlePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer inFile.Close()

	gr, err := gzip.NewReader(inFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read gzip: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	var manifest *BundleManifest
	contents := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read tar: %w", err)
		}

		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read file %s: %w", header.Name, err)
		}

		if header.Name == manifestName {
			manifest = &BundleManifest{}
			if err := yaml.Unmarshal(content, manifest); err != nil {
				return nil, nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
		} else {
			contents[header.Name] = content
		}
	}

	if manifest == nil || manifest.Version == "" {
		return nil, nil, fmt.Errorf("invalid bundle: missing or empty manifest")
	}
	return manifest, contents, nil
}

// Preview reads only the manifest from a bundle without importing anything.
func Preview(bundlePath string) (*BundleManifest, error) {
	inFile, err := os.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer inFile.Close()

	gr, err := gzip.NewReader(inFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar: %w", err)
		}

		if header.Name == manifestName {
			content, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read manifest: %w", err)
			}
			var manifest BundleManifest
			if err := yaml.Unmarshal(content, &manifest); err != nil {
				return nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			return &manifest, nil
		}
	}

	return nil, fmt.Errorf("manifest not found in bundle")
}
