// Package project keeps timestamped pattern saves, one folder per project,
// under ~/.config/flux-sequence/projects
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"flux-sequence/sequencer"
)

// ErrNoSaves is returned when loading the latest save of an empty project
var ErrNoSaves = errors.New("no saves found")

const timestampLayout = "2006-01-02_15-04-05"

// SaveInfo represents a saved pattern file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// Store is a projects directory
type Store struct {
	Dir string
}

// DefaultStore returns the store in the user's config directory
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Store{Dir: filepath.Join(home, ".config", "flux-sequence", "projects")}, nil
}

func (s *Store) projectDir(name string) string {
	return filepath.Join(s.Dir, sanitizeFilename(name))
}

// ListProjects returns all project folder names
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}

	sort.Strings(projects)
	return projects, nil
}

// ListSaves returns timestamped saves for a project, newest first
func (s *Store) ListSaves(project string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(s.projectDir(project))
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, ok := parseSaveName(entry.Name()); ok {
			saves = append(saves, info)
		}
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// parseSaveName reads 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.json
func parseSaveName(filename string) (SaveInfo, bool) {
	base, ok := strings.CutSuffix(filename, ".json")
	if !ok || len(base) < len(timestampLayout) {
		return SaveInfo{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, base[:len(timestampLayout)], time.Local)
	if err != nil {
		return SaveInfo{}, false
	}
	info := SaveInfo{Filename: filename, Timestamp: ts}
	if rest := base[len(timestampLayout):]; len(rest) > 1 && rest[0] == '_' {
		info.Name = rest[1:]
	}
	return info, true
}

// Save writes p into the project as a new timestamped file and returns its
// filename. label, when set, is appended to the timestamp.
func (s *Store) Save(project, label string, p *sequencer.Pattern, now time.Time) (string, error) {
	if project == "" {
		project = "untitled"
	}
	dir := s.projectDir(project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode pattern: %w", err)
	}

	filename := now.Format(timestampLayout)
	if label != "" {
		filename += "_" + sanitizeFilename(label)
	}
	filename += ".json"
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", err
	}
	return filename, nil
}

// Load reads one save, or the most recent one if filename is empty. The
// pattern comes back normalized.
func (s *Store) Load(project, filename string) (*sequencer.Pattern, error) {
	if filename == "" {
		saves, err := s.ListSaves(project)
		if err != nil {
			return nil, err
		}
		if len(saves) == 0 {
			return nil, fmt.Errorf("project %s: %w", project, ErrNoSaves)
		}
		filename = saves[0].Filename
	}

	data, err := os.ReadFile(filepath.Join(s.projectDir(project), filepath.Base(filename)))
	if err != nil {
		return nil, err
	}

	p := &sequencer.Pattern{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	p.Normalize()
	return p, nil
}

// DeleteSave deletes a specific save file
func (s *Store) DeleteSave(project, filename string) error {
	return os.Remove(filepath.Join(s.projectDir(project), filepath.Base(filename)))
}

// RenameSave changes the name part of a save, keeping its timestamp
func (s *Store) RenameSave(project, oldFilename, newName string) (string, error) {
	info, ok := parseSaveName(oldFilename)
	if !ok {
		return "", fmt.Errorf("invalid save filename %q", oldFilename)
	}

	newFilename := info.Timestamp.Format(timestampLayout)
	if newName != "" {
		newFilename += "_" + sanitizeFilename(newName)
	}
	newFilename += ".json"

	dir := s.projectDir(project)
	if err := os.Rename(filepath.Join(dir, oldFilename), filepath.Join(dir, newFilename)); err != nil {
		return "", err
	}
	return newFilename, nil
}

var sanitizer = strings.NewReplacer(
	" ", "-", "/", "-", "\\", "-", ":", "-",
	"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
)

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	return sanitizer.Replace(name)
}
