package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/project-reconciler/internal/types"
)

const (
	// CreatedAtLayout is the document form of a project's creation time
	CreatedAtLayout = "2006-01-02 15:04:05"
	// SourceDateLayout is the form of a source entry's last_updated date
	SourceDateLayout = "2006-01-02"
)

// SourceEntry records where a source published a project and when it last
// reported it.
type SourceEntry struct {
	URL         string `json:"url"`
	LastUpdated string `json:"last_updated"`
}

// Project is the canonical record for one crypto project.
// Identity columns are typed; every other reconciled field lives in Fields.
type Project struct {
	UID       string                 `json:"project_uid" db:"project_uid"`
	Name      string                 `json:"project_name" db:"project_name"`
	Ticker    string                 `json:"project_ticker" db:"project_ticker"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	Sources   map[string]SourceEntry `json:"sources" db:"sources"`
	Fields    types.Document         `json:"-" db:"document"`
	// Version increases by one on every persisted write
	Version   int64     `json:"-" db:"version"`
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// IdentityKey is the lookup key of a (name, ticker) pair: the trimmed,
// lower-cased name and the trimmed, upper-cased ticker.
func IdentityKey(name, ticker string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + NormalizeTicker(ticker)
}

// NormalizeTicker returns the stored form of a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// SourceIDs returns the recorded source identifiers in lexical order.
func (p *Project) SourceIDs() []string {
	ids := make([]string, 0, len(p.Sources))
	for id := range p.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TouchSource records that source reported the project on the given day.
// An empty url keeps the url already on record.
func (p *Project) TouchSource(source, url string, now time.Time) {
	if p.Sources == nil {
		p.Sources = make(map[string]SourceEntry)
	}
	entry := p.Sources[source]
	if url = strings.TrimSpace(url); url != "" || entry.URL == "" {
		entry.URL = url
	}
	entry.LastUpdated = now.Format(SourceDateLayout)
	p.Sources[source] = entry
}

// Document returns the flattened view of the record, as stored documents
// and API responses present it.
func (p *Project) Document() types.Document {
	doc := p.Fields.Clone()
	if doc == nil {
		doc = types.Document{}
	}
	doc[types.FieldProjectUID] = p.UID
	doc[types.FieldProjectName] = p.Name
	doc[types.FieldProjectTicker] = p.Ticker
	if !p.CreatedAt.IsZero() {
		doc[types.FieldCreatedAt] = p.CreatedAt.Format(CreatedAtLayout)
	}
	sources := make(map[string]any, len(p.Sources))
	for id, entry := range p.Sources {
		sources[id] = map[string]any{"url": entry.URL, "last_updated": entry.LastUpdated}
	}
	doc[types.FieldSources] = sources
	return doc
}

// ApplyDocument replaces the record's content with doc. Identity fields are
// taken from doc only when the record has none yet; sources are ignored.
func (p *Project) ApplyDocument(doc types.Document) {
	if p.UID == "" {
		p.UID = doc.String(types.FieldProjectUID)
	}
	if p.Name == "" {
		p.Name = strings.TrimSpace(doc.String(types.FieldProjectName))
	}
	if p.Ticker == "" {
		p.Ticker = NormalizeTicker(doc.String(types.FieldProjectTicker))
	}
	if p.CreatedAt.IsZero() {
		if t, err := time.ParseInLocation(CreatedAtLayout, doc.String(types.FieldCreatedAt), time.UTC); err == nil {
			p.CreatedAt = t
		}
	}
	p.Fields = doc.Without(
		types.FieldProjectUID,
		types.FieldProjectName,
		types.FieldProjectTicker,
		types.FieldCreatedAt,
		types.FieldSources,
	)
}

// ProjectFromDocument builds a record from its flattened view.
func ProjectFromDocument(doc types.Document) (*Project, error) {
	p := &Project{}
	p.ApplyDocument(doc)

	if raw, ok := doc[types.FieldSources]; ok && raw != nil {
		sources, isMap := raw.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("sources: expected object, got %T", raw)
		}
		p.Sources = make(map[string]SourceEntry, len(sources))
		for id, v := range sources {
			switch entry := v.(type) {
			case string:
				p.Sources[id] = SourceEntry{URL: entry}
			case map[string]any:
				url, _ := entry["url"].(string)
				updated, _ := entry["last_updated"].(string)
				p.Sources[id] = SourceEntry{URL: url, LastUpdated: updated}
			default:
				return nil, fmt.Errorf("sources.%s: unsupported value %T", id, v)
			}
		}
	}
	return p, nil
}

// Clone returns a deep copy of the record.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	out := *p
	out.Fields = p.Fields.Clone()
	if p.Sources != nil {
		out.Sources = make(map[string]SourceEntry, len(p.Sources))
		for id, entry := range p.Sources {
			out.Sources[id] = entry
		}
	}
	return &out
}

// MarshalJSON renders the flattened document.
func (p *Project) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Document())
}

// UnmarshalJSON parses a flattened document.
func (p *Project) UnmarshalJSON(data []byte) error {
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := ProjectFromDocument(doc)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// Strings returns the string items of a list field.
func (p *Project) Strings(field string) []string {
	items, _ := p.Fields[field].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
