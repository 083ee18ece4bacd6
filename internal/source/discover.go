package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

// documentExts are the event-record document formats picked up by Discover.
var documentExts = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// Document locates the event records of one unit: a local file or a URL.
type Document struct {
	Path string
	URL  string
}

// Layout is the discovered set of units and where their documents live.
type Layout struct {
	courses []timetable.Course
	docs    map[model.UnitKey]Document
}

func NewLayout() *Layout {
	return &Layout{docs: make(map[model.UnitKey]Document)}
}

// Courses returns the course tree in discovery order.
func (l *Layout) Courses() []timetable.Course {
	return l.courses
}

// Document returns where the records of key are stored.
func (l *Layout) Document(key model.UnitKey) (Document, bool) {
	d, ok := l.docs[key]
	return d, ok
}

// Len reports the number of units.
func (l *Layout) Len() int {
	return len(l.docs)
}

// Add registers a unit. semester and phase are the bare numbers ("3", "1");
// the ids become "sem3" and "phase1". A course name given for an already
// known course is ignored.
func (l *Layout) Add(courseID, courseName, semester, phase string, doc Document) model.UnitKey {
	key := model.UnitKey{
		Course:   courseID,
		Semester: model.SemesterID(semester),
		Phase:    model.PhaseID(phase),
	}

	ci := -1
	for i := range l.courses {
		if l.courses[i].ID == courseID {
			ci = i
			break
		}
	}
	if ci < 0 {
		if courseName == "" {
			courseName = courseID
		}
		l.courses = append(l.courses, timetable.Course{ID: courseID, Name: courseName})
		ci = len(l.courses) - 1
	}
	c := &l.courses[ci]

	si := -1
	for i := range c.Semesters {
		if c.Semesters[i].ID == key.Semester {
			si = i
			break
		}
	}
	if si < 0 {
		c.Semesters = append(c.Semesters, timetable.Semester{ID: key.Semester, Name: semester})
		si = len(c.Semesters) - 1
	}
	s := &c.Semesters[si]

	if _, exists := l.docs[key]; !exists {
		s.Phases = append(s.Phases, timetable.Phase{ID: key.Phase, Name: phase})
	}
	l.docs[key] = doc
	return key
}

// Sort orders courses by id and semesters and phases by their number.
func (l *Layout) Sort() {
	sort.SliceStable(l.courses, func(i, j int) bool { return l.courses[i].ID < l.courses[j].ID })
	for ci := range l.courses {
		sems := l.courses[ci].Semesters
		sort.SliceStable(sems, func(i, j int) bool { return indexLess(sems[i].ID, sems[j].ID) })
		for si := range sems {
			phases := sems[si].Phases
			sort.SliceStable(phases, func(i, j int) bool { return indexLess(phases[i].ID, phases[j].ID) })
		}
	}
}

func indexLess(a, b string) bool {
	na, oka := model.ParseIndex(a)
	nb, okb := model.ParseIndex(b)
	if oka && okb && na != nb {
		return na < nb
	}
	if oka != okb {
		return oka
	}
	return a < b
}

// ParseCourseDir splits "B.Tech (btech-62)" into ("btech-62", "B.Tech").
// Without a parenthesised code the directory name is used for both.
func ParseCourseDir(name string) (id, display string) {
	open := strings.Index(name, "(")
	if open < 0 {
		n := strings.TrimSpace(name)
		return n, n
	}
	display = strings.TrimSpace(name[:open])
	id = strings.Trim(strings.TrimSpace(name[open:]), " ()")
	if id == "" {
		id = display
	}
	if display == "" {
		display = id
	}
	return id, display
}

// Discover walks root/{Course Name (code)}/{semester}/{phase}.{yaml,yml,json}.
// Dot-files and other extensions are skipped. An empty root yields an empty layout.
func Discover(root string) (*Layout, error) {
	l := NewLayout()
	if root == "" {
		return l, nil
	}

	courses, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", root, err)
	}
	for _, cdir := range courses {
		if !cdir.IsDir() || strings.HasPrefix(cdir.Name(), ".") {
			continue
		}
		courseID, courseName := ParseCourseDir(cdir.Name())
		cpath := filepath.Join(root, cdir.Name())

		sems, err := os.ReadDir(cpath)
		if err != nil {
			return nil, fmt.Errorf("source: read %s: %w", cpath, err)
		}
		for _, sdir := range sems {
			if !sdir.IsDir() || strings.HasPrefix(sdir.Name(), ".") {
				continue
			}
			spath := filepath.Join(cpath, sdir.Name())
			files, err := os.ReadDir(spath)
			if err != nil {
				return nil, fmt.Errorf("source: read %s: %w", spath, err)
			}
			for _, f := range files {
				name := f.Name()
				if f.IsDir() || strings.HasPrefix(name, ".") {
					continue
				}
				ext := strings.ToLower(filepath.Ext(name))
				if !documentExts[ext] {
					continue
				}
				phase := strings.TrimSuffix(name, filepath.Ext(name))
				l.Add(courseID, courseName, sdir.Name(), phase, Document{Path: filepath.Join(spath, name)})
			}
		}
	}
	l.Sort()
	return l, nil
}
