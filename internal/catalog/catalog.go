// Package catalog loads and serves the course catalog.
//
// Courses live on disk (or in an embedded fs.FS) as one directory per
// course: <dir>/<course-id>/index.yaml describes the course and its lesson
// sequence; each lesson's body is a markdown file referenced by the YAML.
// The catalog is immutable after Load.
package catalog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aibekov/chaincademy/internal/domain"
	"gopkg.in/yaml.v3"
)

// Service holds the loaded course catalog and provides concurrent-safe access.
type Service struct {
	coursesDir string
	coursesFS  fs.FS
	basePath   string

	mu      sync.RWMutex
	courses map[string]*domain.Course
}

// NewService creates a catalog service reading from a directory on disk.
func NewService(coursesDir string) *Service {
	return &Service{
		coursesDir: coursesDir,
		courses:    make(map[string]*domain.Course),
	}
}

// NewServiceFromFS creates a catalog service reading from an embedded
// filesystem rooted at basePath.
func NewServiceFromFS(coursesFS fs.FS, basePath string) *Service {
	return &Service{
		coursesFS: coursesFS,
		basePath:  basePath,
		courses:   make(map[string]*domain.Course),
	}
}

// Load scans the course directory and loads every valid course. Courses
// that fail to load are skipped with a logged error so one broken course
// definition does not take the catalog down.
func (s *Service) Load() error {
	entries, err := s.readDir()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.courses = make(map[string]*domain.Course)

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		courseID := entry.Name()

		course, err := s.loadCourse(courseID)
		if err != nil {
			slog.Error("Failed to load course", "course_id", courseID, "error", err)
			continue
		}

		s.courses[courseID] = course
		loaded++
	}

	slog.Info("Course catalog loaded", "courses", loaded)
	return nil
}

func (s *Service) readDir() ([]fs.DirEntry, error) {
	if s.coursesFS != nil {
		entries, err := fs.ReadDir(s.coursesFS, s.basePath)
		if err != nil {
			return nil, fmt.Errorf("read embedded courses dir: %w", err)
		}
		return entries, nil
	}

	if _, err := os.Stat(s.coursesDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("courses directory does not exist: %s", s.coursesDir)
	}
	entries, err := os.ReadDir(s.coursesDir)
	if err != nil {
		return nil, fmt.Errorf("read courses directory: %w", err)
	}
	return entries, nil
}

func (s *Service) readFile(courseID, name string) ([]byte, error) {
	if s.coursesFS != nil {
		return fs.ReadFile(s.coursesFS, path.Join(s.basePath, courseID, name))
	}
	return os.ReadFile(filepath.Join(s.coursesDir, courseID, name))
}

func (s *Service) loadCourse(courseID string) (*domain.Course, error) {
	data, err := s.readFile(courseID, "index.yaml")
	if err != nil {
		return nil, fmt.Errorf("read course config: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("course config is empty")
	}

	var course domain.Course
	if err := yaml.Unmarshal(data, &course); err != nil {
		return nil, fmt.Errorf("parse course config: %w", err)
	}

	course.ID = courseID
	if course.Title == "" {
		course.Title = courseID
	}

	if err := validateCourse(&course); err != nil {
		return nil, err
	}

	// Resolve lesson bodies from their markdown files.
	for i := range course.Lessons {
		lesson := &course.Lessons[i]
		if lesson.File == "" {
			continue
		}
		body, err := s.readFile(courseID, lesson.File)
		if err != nil {
			slog.Warn("Failed to load lesson body", "course_id", courseID, "lesson_id", lesson.ID, "error", err)
			continue
		}
		lesson.Content = string(body)
	}

	return &course, nil
}

func validateCourse(course *domain.Course) error {
	if len(course.Lessons) == 0 {
		return fmt.Errorf("course has no lessons")
	}

	seen := make(map[string]bool, len(course.Lessons))
	for i := range course.Lessons {
		id := course.Lessons[i].ID
		if id == "" {
			return fmt.Errorf("lesson at index %d has no id", i)
		}
		if seen[id] {
			return fmt.Errorf("duplicate lesson id: %s", id)
		}
		seen[id] = true
	}

	switch course.Level {
	case domain.LevelBeginner, domain.LevelIntermediate, domain.LevelAdvanced:
	case "":
		course.Level = domain.LevelBeginner
	default:
		return fmt.Errorf("unknown course level: %s", course.Level)
	}

	return nil
}

// Course returns the course with the given ID.
func (s *Service) Course(id string) (*domain.Course, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	course, exists := s.courses[id]
	return course, exists
}

// List returns all loaded courses sorted by ID.
func (s *Service) List() []*domain.Course {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
