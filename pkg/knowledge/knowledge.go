// Package knowledge provides the static knowledge base used by the planning
// phase: modeling archetypes matched by keyword, and historically solved
// problems retrieved by similarity. Lookups are read-only; the base is
// seeded on first open.
package knowledge

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"papermill/pkg/logx"
)

// Archetype is a canonical model family with its trigger keywords.
type Archetype struct {
	ID          string
	Name        string
	Keywords    []string
	Techniques  []string
	Description string
}

// Problem is one historically solved problem.
type Problem struct {
	ID       string
	Year     int
	Title    string
	Summary  string
	Methods  []string
	Keywords []string
}

// ArchetypeMatch pairs an archetype with its keyword hit score.
type ArchetypeMatch struct {
	Archetype Archetype
	Score     int
}

// Analysis is the result of the local heuristic problem analysis.
type Analysis struct {
	Terms      []string
	Archetypes []ArchetypeMatch
	Similar    []Problem
}

// Base is the opened knowledge base.
type Base struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (or creates and seeds) the knowledge base at path. Use
// ":memory:" for an ephemeral base.
func Open(path string) (*Base, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping knowledge base: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &Base{db: db, logger: logx.NewLogger("knowledge")}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := b.seedIfEmpty(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

// Close releases the database handle.
func (b *Base) Close() error {
	return b.db.Close()
}

func (b *Base) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS archetypes (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		keywords    TEXT NOT NULL,
		techniques  TEXT NOT NULL,
		description TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS problems (
		id       TEXT PRIMARY KEY,
		year     INTEGER NOT NULL,
		title    TEXT NOT NULL,
		summary  TEXT NOT NULL,
		methods  TEXT NOT NULL,
		keywords TEXT NOT NULL
	);`

	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}
	return nil
}

// AddArchetype inserts or replaces an archetype.
func (b *Base) AddArchetype(a Archetype) error {
	_, err := b.db.Exec(
		`INSERT OR REPLACE INTO archetypes (id, name, keywords, techniques, description) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, strings.Join(a.Keywords, ","), strings.Join(a.Techniques, ","), a.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to insert archetype %s: %w", a.ID, err)
	}
	return nil
}

// AddProblem inserts or replaces a historical problem.
func (b *Base) AddProblem(p Problem) error {
	_, err := b.db.Exec(
		`INSERT OR REPLACE INTO problems (id, year, title, summary, methods, keywords) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Year, p.Title, p.Summary, strings.Join(p.Methods, ","), strings.Join(p.Keywords, ","),
	)
	if err != nil {
		return fmt.Errorf("failed to insert problem %s: %w", p.ID, err)
	}
	return nil
}

// Archetypes returns all archetypes.
func (b *Base) Archetypes() ([]Archetype, error) {
	rows, err := b.db.Query(`SELECT id, name, keywords, techniques, description FROM archetypes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archetypes: %w", err)
	}
	defer rows.Close()

	var out []Archetype
	for rows.Next() {
		var a Archetype
		var keywords, techniques string
		if err := rows.Scan(&a.ID, &a.Name, &keywords, &techniques, &a.Description); err != nil {
			return nil, fmt.Errorf("failed to scan archetype: %w", err)
		}
		a.Keywords = splitList(keywords)
		a.Techniques = splitList(techniques)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Problems returns all historical problems.
func (b *Base) Problems() ([]Problem, error) {
	rows, err := b.db.Query(`SELECT id, year, title, summary, methods, keywords FROM problems ORDER BY year DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query problems: %w", err)
	}
	defer rows.Close()

	var out []Problem
	for rows.Next() {
		var p Problem
		var methods, keywords string
		if err := rows.Scan(&p.ID, &p.Year, &p.Title, &p.Summary, &methods, &keywords); err != nil {
			return nil, fmt.Errorf("failed to scan problem: %w", err)
		}
		p.Methods = splitList(methods)
		p.Keywords = splitList(keywords)
		out = append(out, p)
	}
	return out, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// maxSimilarProblems bounds the historical retrieval list.
const maxSimilarProblems = 3

// Analyze runs the local heuristic analysis over a problem statement:
// keyword extraction, archetype matching, and historical retrieval. No LLM
// call is involved.
func (b *Base) Analyze(problemText string) (Analysis, error) {
	terms := ExtractKeyTerms(problemText)
	termSet := make(map[string]bool, len(terms))
	for _, t := range terms {
		termSet[strings.ToLower(t)] = true
	}

	archetypes, err := b.Archetypes()
	if err != nil {
		return Analysis{}, err
	}

	var matches []ArchetypeMatch
	for _, a := range archetypes {
		score := 0
		for _, kw := range a.Keywords {
			if termSet[strings.ToLower(kw)] || strings.Contains(strings.ToLower(problemText), strings.ToLower(kw)) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, ArchetypeMatch{Archetype: a, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	problems, err := b.Problems()
	if err != nil {
		return Analysis{}, err
	}

	type scored struct {
		p     Problem
		score int
	}
	var similar []scored
	for _, p := range problems {
		score := 0
		for _, kw := range p.Keywords {
			if termSet[strings.ToLower(kw)] || strings.Contains(strings.ToLower(problemText), strings.ToLower(kw)) {
				score++
			}
		}
		if score > 0 {
			similar = append(similar, scored{p: p, score: score})
		}
	}
	sort.SliceStable(similar, func(i, j int) bool { return similar[i].score > similar[j].score })

	analysis := Analysis{Terms: terms, Archetypes: matches}
	for i, s := range similar {
		if i >= maxSimilarProblems {
			break
		}
		analysis.Similar = append(analysis.Similar, s.p)
	}

	b.logger.Debug("analysis matched %d archetypes, %d similar problems", len(matches), len(analysis.Similar))
	return analysis, nil
}

// Report renders the analysis as the text block persisted into the planning
// artifact.
func (a Analysis) Report() string {
	var sb strings.Builder

	sb.WriteString("## Heuristic Problem Analysis\n\n")

	if len(a.Archetypes) == 0 {
		sb.WriteString("No modeling archetype matched; treat as an open-ended problem.\n")
	} else {
		sb.WriteString("Matched modeling archetypes:\n")
		for _, m := range a.Archetypes {
			sb.WriteString(fmt.Sprintf("- %s (score %d): %s. Techniques: %s\n",
				m.Archetype.Name, m.Score, m.Archetype.Description,
				strings.Join(m.Archetype.Techniques, ", ")))
		}
	}

	if len(a.Similar) > 0 {
		sb.WriteString("\nSimilar historical problems:\n")
		for _, p := range a.Similar {
			sb.WriteString(fmt.Sprintf("- [%d] %s: %s (methods: %s)\n",
				p.Year, p.Title, p.Summary, strings.Join(p.Methods, ", ")))
		}
	}

	return sb.String()
}
