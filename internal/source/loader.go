package source

import (
	"context"
	"fmt"
	"os"

	"ttcal/internal/curriculum"
	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

// Loader reads and decodes unit documents. It implements timetable.EventSource.
type Loader struct {
	layout  *Layout
	fetcher *Fetcher
	names   *curriculum.Catalog
}

// NewLoader builds a loader over layout. fetcher may be nil when no unit
// is remote.
func NewLoader(layout *Layout, fetcher *Fetcher, names *curriculum.Catalog) *Loader {
	return &Loader{layout: layout, fetcher: fetcher, names: names}
}

// Events returns the records of key. Units not present in the layout, or
// whose local file has disappeared, report timetable.ErrMissingSource.
func (l *Loader) Events(ctx context.Context, key model.UnitKey) ([]*model.Event, timetable.Diagnostics, error) {
	doc, ok := l.layout.Document(key)
	if !ok {
		return nil, nil, fmt.Errorf("source: %s: %w", key, timetable.ErrMissingSource)
	}

	var data []byte
	switch {
	case doc.URL != "":
		if l.fetcher == nil {
			return nil, nil, fmt.Errorf("source: %s: remote document without a fetcher", key)
		}
		res, err := l.fetcher.Fetch(ctx, key.String(), doc.URL)
		if err != nil {
			return nil, nil, err
		}
		data = res.Body
	case doc.Path != "":
		b, err := os.ReadFile(doc.Path)
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("source: %s: %w", key, timetable.ErrMissingSource)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("source: read %s: %w", doc.Path, err)
		}
		data = b
	default:
		return nil, nil, fmt.Errorf("source: %s: %w", key, timetable.ErrMissingSource)
	}

	return Decode(key, data, l.names)
}
