// Package timetable is the XML-backed declarative event store
// (spec.md §4.3, §6): mtime-polled reload, atomic snapshot swap, and
// atomic rewrite-on-mutation.
package timetable

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starscheduler/starscheduler/internal/model"
)

// xmlDoc is the on-disk shape, matching spec.md §6 exactly.
type xmlDoc struct {
	XMLName xml.Name   `xml:"timetable"`
	Events  []xmlEvent `xml:"event"`
}

type xmlEvent struct {
	DisplayName     string          `xml:"DisplayName"`
	Category        string          `xml:"Category"`
	TargetID        string          `xml:"TargetID,omitempty"`
	CustomCommand   string          `xml:"CustomCommand,omitempty"`
	MinuteInterval  int             `xml:"MinuteInterval,omitempty"`
	TenMinuteInterval *xmlTenMinutes `xml:"TenMinuteInterval"`
	Hours           *xmlHours       `xml:"Hours"`
	Days            *xmlDays        `xml:"Days"`
	Weeks           *xmlWeeks       `xml:"Weeks"`
	Months          *xmlMonths      `xml:"Months"`
	RunAtStartup    bool            `xml:"RunAtStartup"`
	Enabled         bool            `xml:"Enabled"`
	ClientConfigs   *xmlClientConfigs `xml:"ClientConfigs"`
	Clients         *xmlClients     `xml:"clients"`
	Flavor          *xmlFlavors     `xml:"flavor"`
}

type xmlTenMinutes struct {
	Values []string `xml:"TenMinute"`
}

type xmlHours struct {
	Hours []xmlHour `xml:"Hour"`
}

type xmlHour struct {
	Period string `xml:"period,attr"`
	Value  int    `xml:",chardata"`
}

type xmlDays struct {
	Values []string `xml:"Day"`
}

type xmlWeeks struct {
	Values []int `xml:"Week"`
}

type xmlMonths struct {
	Values []int `xml:"Month"`
}

type xmlClientConfigs struct {
	ClientConfigs []xmlClientConfig `xml:"ClientConfig"`
}

type xmlClientConfig struct {
	ID              string `xml:"id,attr"`
	Client          string `xml:"client,attr"`
	Action          string `xml:"Action"`
	Flavor          string `xml:"Flavor"`
	PresentationID  string `xml:"PresentationID"`
	Duration        int    `xml:"Duration"`
	Logo            string `xml:"Logo"`
	Command         string `xml:"Command"`
	SU              string `xml:"SU"`
	LDLState        string `xml:"LDLState"`
	SeparateLoadRun bool   `xml:"SeparateLoadRun"`
	LoadOffset      int    `xml:"LoadOffset"`
	RunOffset       int    `xml:"RunOffset"`
}

type xmlClients struct {
	Values []string `xml:"client"`
}

type xmlFlavors struct {
	Flavors []xmlFlavor `xml:"flavor"`
}

type xmlFlavor struct {
	Client string `xml:"client,attr"`
	Value  string `xml:",chardata"`
}

// legacySynthesisDuration is the duration, in seconds, used when an
// event carries only the legacy flavor mapping (spec.md §6, §9 Open
// Question 1: resolved as seconds).
const legacySynthesisDuration = 60

// categoryToXML and categoryFromXML translate between the internal
// model.Category* constants and the XML document's display strings.
var categoryToXML = map[string]string{
	model.CategoryCuePresentation:   "Cue Presentation",
	model.CategoryCustomCommand:     "Custom Command",
	model.CategoryCancelPresentation: "Cancel Presentation",
}

var categoryFromXML = map[string]string{
	"Cue Presentation":    model.CategoryCuePresentation,
	"Custom Command":      model.CategoryCustomCommand,
	"Cancel Presentation": model.CategoryCancelPresentation,
}

// Snapshot is an immutable, read-only view of the timetable, safe to
// share across goroutines without copying.
type Snapshot struct {
	Events []model.Event
}

// ByName returns the event with the given display name, or false.
func (s *Snapshot) ByName(name string) (model.Event, bool) {
	for _, e := range s.Events {
		if e.DisplayName == name {
			return e, true
		}
	}
	return model.Event{}, false
}

// Store owns the XML file, the polling reload watcher, and the
// currently published Snapshot.
type Store struct {
	path string

	current atomic.Pointer[Snapshot]
	modTime atomic.Int64 // unix nanos of the last-seen file mtime

	writeMu sync.Mutex // serializes write/delete/edit rewrites

	onChange func() // notifies the scheduler to re-register jobs
}

// Open loads path once and returns a Store primed with its snapshot.
func Open(path string, onChange func()) (*Store, error) {
	s := &Store{path: path, onChange: onChange}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the currently published, immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// SetOnChange installs the callback invoked after every successful
// reload or mutation (the scheduler's re-register-jobs hook). It may
// be set after Open, once the caller holding the callback (e.g. the
// engine) exists.
func (s *Store) SetOnChange(onChange func()) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.onChange = onChange
}

// Watch polls the file's mtime every interval until stop is closed,
// reloading and calling onChange when the mtime changes.
// Reload errors are reported via report and the previous snapshot is
// kept in place (spec.md §7's Timetable-parse policy).
func (s *Store) Watch(interval time.Duration, stop <-chan struct{}, report func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			info, err := os.Stat(s.path)
			if err != nil {
				report(fmt.Errorf("timetable: stat %s: %w", s.path, err))
				continue
			}
			if info.ModTime().UnixNano() == s.modTime.Load() {
				continue
			}
			if err := s.reload(); err != nil {
				report(err)
				continue
			}
			if s.onChange != nil {
				s.onChange()
			}
		}
	}
}

func (s *Store) reload() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("timetable: stat %s: %w", s.path, err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("timetable: read %s: %w", s.path, err)
	}
	var doc xmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("timetable: parse %s: %w", s.path, err)
	}
	events := make([]model.Event, 0, len(doc.Events))
	for _, xe := range doc.Events {
		events = append(events, fromXML(xe))
	}
	s.current.Store(&Snapshot{Events: events})
	s.modTime.Store(info.ModTime().UnixNano())
	return nil
}

// Write upserts event by DisplayName, rewrites the file atomically,
// refreshes the in-memory snapshot, and notifies onChange.
func (s *Store) Write(event model.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events := append([]model.Event(nil), s.current.Load().Events...)
	replaced := false
	for i, e := range events {
		if e.DisplayName == event.DisplayName {
			events[i] = event
			replaced = true
			break
		}
	}
	if !replaced {
		events = append(events, event)
	}
	return s.persist(events)
}

// Delete removes the event with the given display name, returning
// whether it was present.
func (s *Store) Delete(displayName string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events := s.current.Load().Events
	out := make([]model.Event, 0, len(events))
	found := false
	for _, e := range events {
		if e.DisplayName == displayName {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return false, nil
	}
	return true, s.persist(out)
}

// Edit replaces oldName's event with newEvent, returning whether
// oldName was present.
func (s *Store) Edit(oldName string, newEvent model.Event) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events := append([]model.Event(nil), s.current.Load().Events...)
	found := false
	for i, e := range events {
		if e.DisplayName == oldName {
			events[i] = newEvent
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	return true, s.persist(events)
}

// persist rewrites the XML file via a temp-file-plus-rename swap,
// then refreshes the snapshot and calls onChange. Caller must hold
// writeMu.
func (s *Store) persist(events []model.Event) error {
	doc := xmlDoc{Events: make([]xmlEvent, 0, len(events))}
	for _, e := range events {
		doc.Events = append(doc.Events, toXML(e))
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("timetable: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".timetable-*.xml")
	if err != nil {
		return fmt.Errorf("timetable: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("timetable: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("timetable: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("timetable: replace %s: %w", s.path, err)
	}

	s.current.Store(&Snapshot{Events: events})
	if info, err := os.Stat(s.path); err == nil {
		s.modTime.Store(info.ModTime().UnixNano())
	}
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}
