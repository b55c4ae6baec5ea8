// Package rules persists the editable decision rule tables as
// pretty-printed JSON documents and serves in-process snapshots of them
// to the decision engine.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/domain"
)

// documentVersion is written into every saved rule document.
const documentVersion = 1

// Store loads and saves one rule table. Every mutating call persists the
// full document immediately (write to a temp file, then rename) and
// invalidates the snapshot cache, so reads within this process see the
// mutation on the next load. Two processes with independent caches can
// disagree until both reload; rule edits are rare administrative actions
// and that window is accepted.
type Store struct {
	id    domain.TableID
	path  string
	cache *Cache
	log   *logrus.Logger

	mu sync.Mutex // serializes mutate-and-save sequences
}

// NewStore creates a store for one table backed by the document at path.
func NewStore(id domain.TableID, path string, cache *Cache, logger *logrus.Logger) *Store {
	return &Store{
		id:    id,
		path:  path,
		cache: cache,
		log:   logger,
	}
}

// ID returns the table this store manages.
func (s *Store) ID() domain.TableID {
	return s.id
}

// Load returns the current rule table. On a missing or malformed
// document it returns an empty table together with the error, so callers
// can render an empty-state editor instead of failing: an empty table
// simply classifies every field as not applicable.
func (s *Store) Load() (*domain.RuleTable, error) {
	if table, ok := s.cache.Get(s.id); ok {
		return table, nil
	}

	// The generation is snapshotted before the file is read: a save
	// landing between the read and the Put below advances it, and the
	// then-stale snapshot is dropped instead of cached.
	gen := s.cache.Generation()

	empty := &domain.RuleTable{ID: s.id}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"table": s.id,
			"path":  s.path,
		}).WithError(err).Warn("Rule table document unreadable, serving empty table")
		return empty, fmt.Errorf("reading rule table %s: %w", s.id, err)
	}

	table, err := s.decode(data)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"table": s.id,
			"path":  s.path,
		}).WithError(err).Warn("Rule table document malformed, serving empty table")
		return empty, fmt.Errorf("decoding rule table %s: %w", s.id, err)
	}

	s.cache.Put(s.id, table, gen)
	return table, nil
}

// Save persists the full table, replacing prior content. The document is
// written to a temporary file in the same directory and renamed over the
// target, so concurrent readers never observe a partial write. The
// snapshot cache is invalidated only after the rename succeeds.
func (s *Store) Save(table *domain.RuleTable) error {
	data, err := s.encode(table)
	if err != nil {
		return fmt.Errorf("encoding rule table %s: %w", s.id, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating rules directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp rule document: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing rule document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing rule document: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing rule document: %w", err)
	}

	s.cache.Invalidate()

	s.log.WithFields(logrus.Fields{
		"table":    s.id,
		"path":     s.path,
		"subjects": len(table.Subjects),
	}).Info("Rule table saved")

	return nil
}

// GetSubject returns one subject from the current table.
func (s *Store) GetSubject(code string) (*domain.RuleSubject, error) {
	table, err := s.Load()
	if err != nil {
		return nil, err
	}
	return table.Subject(code)
}

// AddSubject appends a subject to the table and persists it. Returns
// ErrAlreadyExists when the subject code is already present.
func (s *Store) AddSubject(subject domain.RuleSubject) (*domain.RuleTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A load error means the document is missing or corrupt; mutations
	// start from the empty table in that case so an admin can rebuild it.
	table, _ := s.Load()

	if table.HasSubject(subject.Code) {
		return nil, fmt.Errorf("subject %q: %w", subject.Code, domain.ErrAlreadyExists)
	}

	updated := cloneTable(table)
	updated.Subjects = append(updated.Subjects, subject)

	if err := s.Save(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveSubject deletes a subject and persists the table. Removing an
// absent subject is a no-op, not an error.
func (s *Store) RemoveSubject(code string) (*domain.RuleTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, _ := s.Load()

	updated := cloneTable(table)
	kept := updated.Subjects[:0]
	for _, subject := range updated.Subjects {
		if subject.Code != code {
			kept = append(kept, subject)
		}
	}
	updated.Subjects = kept

	if err := s.Save(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// ReplaceRanges swaps a subject's range list and persists the table.
// Returns ErrNotFound when the subject does not exist.
func (s *Store) ReplaceRanges(code string, ranges []domain.Range) (*domain.RuleTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, _ := s.Load()

	updated := cloneTable(table)
	found := false
	for i := range updated.Subjects {
		if updated.Subjects[i].Code == code {
			updated.Subjects[i].Ranges = append([]domain.Range(nil), ranges...)
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("subject %q: %w", code, domain.ErrNotFound)
	}

	if err := s.Save(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// ReplaceCriteria swaps the acceptance-criteria map and persists the
// table. Only meaningful for the mechanical table.
func (s *Store) ReplaceCriteria(criteria map[string]domain.AcceptanceCriterion) (*domain.RuleTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, _ := s.Load()

	updated := cloneTable(table)
	updated.Criteria = make(map[string]domain.AcceptanceCriterion, len(criteria))
	for key, criterion := range criteria {
		updated.Criteria[key] = criterion
	}

	if err := s.Save(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// cloneTable copies a table deeply enough that mutations never touch a
// snapshot other goroutines may still be classifying against.
func cloneTable(table *domain.RuleTable) *domain.RuleTable {
	clone := &domain.RuleTable{ID: table.ID}
	clone.Subjects = make([]domain.RuleSubject, len(table.Subjects))
	for i, subject := range table.Subjects {
		copied := subject
		copied.Ranges = append([]domain.Range(nil), subject.Ranges...)
		clone.Subjects[i] = copied
	}
	if table.Criteria != nil {
		clone.Criteria = make(map[string]domain.AcceptanceCriterion, len(table.Criteria))
		for key, criterion := range table.Criteria {
			clone.Criteria[key] = criterion
		}
	}
	return clone
}

// Wire formats. The chemical document keys subjects by "element", the
// mechanical one by "property" with bilingual display names; both are
// hand-edited files, so saves pretty-print and never HTML-escape the
// Arabic decision labels.

type chemicalRule struct {
	Element string         `json:"element"`
	Ranges  []domain.Range `json:"ranges"`
}

type chemicalDocument struct {
	Version int            `json:"version"`
	Rules   []chemicalRule `json:"rules"`
}

type mechanicalRule struct {
	Property string         `json:"property"`
	Name     string         `json:"name,omitempty"`
	NameAr   string         `json:"name_ar,omitempty"`
	Unit     string         `json:"unit,omitempty"`
	Ranges   []domain.Range `json:"ranges"`
}

type mechanicalDocument struct {
	Version  int                                   `json:"version"`
	Rules    []mechanicalRule                      `json:"rules"`
	Criteria map[string]domain.AcceptanceCriterion `json:"acceptance_criteria,omitempty"`
}

func (s *Store) decode(data []byte) (*domain.RuleTable, error) {
	table := &domain.RuleTable{ID: s.id}

	switch s.id {
	case domain.ChemicalTable:
		var doc chemicalDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		for _, rule := range doc.Rules {
			table.Subjects = append(table.Subjects, domain.RuleSubject{
				Code:   rule.Element,
				Ranges: rule.Ranges,
			})
		}
	case domain.MechanicalTable:
		var doc mechanicalDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		for _, rule := range doc.Rules {
			table.Subjects = append(table.Subjects, domain.RuleSubject{
				Code:   rule.Property,
				Name:   rule.Name,
				NameAr: rule.NameAr,
				Unit:   rule.Unit,
				Ranges: rule.Ranges,
			})
		}
		table.Criteria = doc.Criteria
	default:
		return nil, fmt.Errorf("unknown rule table %q", s.id)
	}

	return table, nil
}

func (s *Store) encode(table *domain.RuleTable) ([]byte, error) {
	var doc any

	switch s.id {
	case domain.ChemicalTable:
		out := chemicalDocument{Version: documentVersion, Rules: []chemicalRule{}}
		for _, subject := range table.Subjects {
			out.Rules = append(out.Rules, chemicalRule{
				Element: subject.Code,
				Ranges:  subject.Ranges,
			})
		}
		doc = out
	case domain.MechanicalTable:
		out := mechanicalDocument{
			Version:  documentVersion,
			Rules:    []mechanicalRule{},
			Criteria: table.Criteria,
		}
		for _, subject := range table.Subjects {
			out.Rules = append(out.Rules, mechanicalRule{
				Property: subject.Code,
				Name:     subject.Name,
				NameAr:   subject.NameAr,
				Unit:     subject.Unit,
				Ranges:   subject.Ranges,
			})
		}
		doc = out
	default:
		return nil, fmt.Errorf("unknown rule table %q", s.id)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
