// Package export writes propagated orbits as satellite JSON documents.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitsim/internal/propagation"
)

const (
	filePrefix = "orbit_"
	fileSuffix = ".json"
)

// Satellite describes the exported object.
type Satellite struct {
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	OrbitalParameters OrbitalParameters `json:"orbitalParameters"`
	ModelType         string            `json:"modelType"`
}

// OrbitalParameters holds the sampled ECI positions in meters.
type OrbitalParameters struct {
	Positions []propagation.Vector3 `json:"positions"`
}

// Document is the top-level JSON layout.
type Document struct {
	Satellite Satellite `json:"satellite"`
}

// NewDocument wraps positions in a Document. An empty modelType means "point".
func NewDocument(name, description, modelType string, positions []propagation.Vector3) Document {
	if modelType == "" {
		modelType = "point"
	}
	if positions == nil {
		positions = []propagation.Vector3{}
	}
	return Document{Satellite: Satellite{
		Name:              name,
		Description:       description,
		OrbitalParameters: OrbitalParameters{Positions: positions},
		ModelType:         modelType,
	}}
}

// Writer stores documents as timestamped files in a directory and keeps at
// most maxFiles of them.
type Writer struct {
	dir      string
	maxFiles int
}

// NewWriter creates a Writer for dir. maxFiles <= 0 defaults to 10.
func NewWriter(dir string, maxFiles int) *Writer {
	if maxFiles <= 0 {
		maxFiles = 10
	}
	return &Writer{dir: dir, maxFiles: maxFiles}
}

// Write saves doc to orbit_<unix nanoseconds>.json, prunes old files, and
// returns the path written. An existing file for the same ts is an error.
func (w *Writer) Write(doc Document, ts time.Time) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s%d%s", filePrefix, ts.UnixNano(), fileSuffix))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing export file: %w", err)
	}

	return path, w.prune()
}

// Latest reads the newest document by filename timestamp.
func (w *Writer) Latest() (Document, time.Time, error) {
	files, err := w.listFiles()
	if err != nil {
		return Document{}, time.Time{}, err
	}
	if len(files) == 0 {
		return Document{}, time.Time{}, fmt.Errorf("no export files in %s", w.dir)
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(w.dir, latest.name))
	if err != nil {
		return Document{}, time.Time{}, fmt.Errorf("reading export file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, time.Time{}, fmt.Errorf("decoding %s: %w", latest.name, err)
	}
	return doc, latest.ts, nil
}

type exportFile struct {
	name string
	ts   time.Time
}

// listFiles returns export files sorted oldest first.
func (w *Writer) listFiles() ([]exportFile, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing export dir: %w", err)
	}

	var files []exportFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		nanos, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, exportFile{name: name, ts: time.Unix(0, nanos)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})
	return files, nil
}

func (w *Writer) prune() error {
	files, err := w.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= w.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-w.maxFiles] {
		if err := os.Remove(filepath.Join(w.dir, f.name)); err != nil {
			return fmt.Errorf("pruning export file %s: %w", f.name, err)
		}
	}
	return nil
}
