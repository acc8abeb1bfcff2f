package registration

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Program is an academic program offered by a faculty.
type Program struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FacultyID int64  `json:"faculty_id"`
}

// ProgramSource lists the programs of a faculty.
type ProgramSource func(ctx context.Context, facultyID int64) ([]Program, error)

// ProgramCache memoizes the program list of the currently selected faculty.
// It is owned by a single picker and dropped whenever the faculty changes.
type ProgramCache struct {
	source ProgramSource

	mu        sync.Mutex
	facultyID int64
	programs  []Program
	loaded    bool
}

// NewProgramCache constructs an empty cache backed by source.
func NewProgramCache(source ProgramSource) *ProgramCache {
	return &ProgramCache{source: source}
}

// Invalidate drops cached programs and binds the cache to facultyID.
func (c *ProgramCache) Invalidate(facultyID int64) {
	c.mu.Lock()
	c.facultyID = facultyID
	c.programs = nil
	c.loaded = false
	c.mu.Unlock()
}

// Programs returns the programs of facultyID, loading them on first use.
// A load that finishes after the cache moved to another faculty is returned
// to its caller but not stored.
func (c *ProgramCache) Programs(ctx context.Context, facultyID int64) ([]Program, error) {
	c.mu.Lock()
	if c.loaded && c.facultyID == facultyID {
		out := append([]Program(nil), c.programs...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	programs, err := c.source(ctx, facultyID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.facultyID == facultyID {
		c.programs = append([]Program(nil), programs...)
		c.loaded = true
	}
	c.mu.Unlock()
	return programs, nil
}

// ProgramPicker is the dependent program selector: a faculty selector drives
// which programs a debounced name search runs against.
type ProgramPicker struct {
	cache  *ProgramCache
	lookup *Lookup[Program]

	mu        sync.Mutex
	facultyID int64
}

// NewProgramPicker wires a picker over source.
func NewProgramPicker(cfg LookupConfig, source ProgramSource, logger *slog.Logger) *ProgramPicker {
	p := &ProgramPicker{cache: NewProgramCache(source)}
	p.lookup = NewLookup(cfg, p.search, logger)
	return p
}

// SetFaculty changes the parent selection. Changing it clears the cache and the suggestions.
func (p *ProgramPicker) SetFaculty(facultyID int64) {
	p.mu.Lock()
	changed := p.facultyID != facultyID
	p.facultyID = facultyID
	p.mu.Unlock()
	if !changed {
		return
	}
	p.cache.Invalidate(facultyID)
	p.lookup.Reset()
}

// Faculty returns the current parent selection.
func (p *ProgramPicker) Faculty() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.facultyID
}

// Search runs a debounced program search within the current faculty.
func (p *ProgramPicker) Search(query string) {
	p.lookup.Search(query)
}

// Result returns the visible program suggestions.
func (p *ProgramPicker) Result() LookupResult[Program] {
	return p.lookup.Result()
}

// Select accepts a suggestion and clears the search.
func (p *ProgramPicker) Select(program Program) Program {
	p.lookup.Reset()
	return program
}

// Close releases the underlying lookup.
func (p *ProgramPicker) Close() {
	p.lookup.Close()
}

func (p *ProgramPicker) search(ctx context.Context, query string) ([]Program, error) {
	facultyID := p.Faculty()
	if facultyID == 0 {
		return nil, nil
	}
	programs, err := p.cache.Programs(ctx, facultyID)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	matches := make([]Program, 0, len(programs))
	for _, program := range programs {
		if strings.Contains(fold.String(program.Name), needle) {
			matches = append(matches, program)
		}
	}
	return matches, nil
}
