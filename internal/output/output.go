package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ttcal/internal/ics"
	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

const (
	MetadataFile = "metadata.json"
	ClassesFile  = "classes.json"
	ClassesDir   = "classes"
	FeedDir      = "ical"

	filePerm = 0o644
	dirPerm  = 0o755
)

// BatchFile is the per-batch schedule path relative to the output root:
// classes/{course}/{semester}/{phase}/{batch}.json.
func BatchFile(unit model.UnitKey, batch string) string {
	return filepath.Join(ClassesDir, unit.Course, unit.Semester, unit.Phase, strings.ToLower(batch)+".json")
}

// FeedFile is the feed path relative to the output root: ical/{course}/{semester}/{phase}/{batch}.ics.
func FeedFile(unit model.UnitKey, batch string) string {
	return filepath.Join(FeedDir, filepath.FromSlash(ics.FeedPath(unit, batch)))
}

// Writer persists generated documents under one root directory. Every file
// is replaced atomically so readers never observe a partial document.
type Writer struct {
	root string
}

func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

func (w *Writer) Root() string {
	return w.root
}

// Encode marshals v as the JSON form of an output document. Failures wrap
// timetable.ErrSerialization.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", timetable.ErrSerialization, err)
	}
	return append(data, '\n'), nil
}

// WriteJSON encodes v and writes it to rel.
func (w *Writer) WriteJSON(rel string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("output: %s: %w", rel, err)
	}
	return WriteFileAtomic(filepath.Join(w.root, rel), data)
}

// WriteResult writes metadata.json, the combined classes.json keyed by
// "course_semester_phase_batch", and one schedule document per batch.
func (w *Writer) WriteResult(res *timetable.Result) error {
	if err := w.WriteJSON(MetadataFile, res.Metadata); err != nil {
		return err
	}
	schedules := res.Schedules()
	combined := make(map[string]timetable.BatchSchedule, len(schedules))
	for _, s := range schedules {
		combined[s.Key()] = s
		if err := w.WriteJSON(BatchFile(s.Unit, s.Batch), s); err != nil {
			return err
		}
	}
	return w.WriteJSON(ClassesFile, combined)
}

// Resync compares the UIDs of a feed before and after regeneration.
type Resync struct {
	Path    string
	Added   []string
	Removed []string
	Kept    []string
}

// Changed reports whether any occurrence appeared or disappeared.
func (r Resync) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// DiffUIDs classifies next against prev. Order follows next for Added and
// Kept, prev for Removed.
func DiffUIDs(prev, next []string) Resync {
	before := make(map[string]bool, len(prev))
	for _, u := range prev {
		before[u] = true
	}
	after := make(map[string]bool, len(next))
	r := Resync{Added: []string{}, Removed: []string{}, Kept: []string{}}
	for _, u := range next {
		after[u] = true
		if before[u] {
			r.Kept = append(r.Kept, u)
		} else {
			r.Added = append(r.Added, u)
		}
	}
	for _, u := range prev {
		if !after[u] {
			r.Removed = append(r.Removed, u)
		}
	}
	return r
}

// WriteFeed serializes feed, replaces its file and reports how its UIDs
// changed. A previous file that cannot be parsed counts as empty.
func (w *Writer) WriteFeed(feed *ics.Feed) (Resync, error) {
	rel := FeedFile(feed.Unit, feed.Batch)
	path := filepath.Join(w.root, rel)

	data, err := feed.Serialize()
	if err != nil {
		return Resync{}, fmt.Errorf("output: %s: %w", rel, err)
	}

	var prev []string
	old, err := os.ReadFile(path)
	switch {
	case err == nil:
		prev, _ = ics.FeedUIDs(bytes.NewReader(old))
	case !errors.Is(err, fs.ErrNotExist):
		return Resync{}, fmt.Errorf("output: read previous %s: %w", rel, err)
	}

	if err := WriteFileAtomic(path, data); err != nil {
		return Resync{}, err
	}
	r := DiffUIDs(prev, feed.UIDs())
	r.Path = rel
	return r, nil
}

// WriteFileAtomic writes data to a temp file beside path and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("output: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("output: rename %s: %w", path, err)
	}
	return nil
}
