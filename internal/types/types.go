// Package types provides common type definitions for the project reconciliation system.
package types

import "sort"

// Document is a loosely-typed JSON tree describing a project, as produced by
// scrapers and enrichment workers and as stored for a canonical record.
type Document map[string]any

// Well-known upstream sources, highest authority first in the default ordering.
const (
	SourceCoinMarketCap = "coinmarketcap"
	SourceCoinGecko     = "coingecko"
	SourceDexTools      = "dextools"
	SourceDexScreener   = "dexscreener"
	SourceBirdeye       = "birdeye"
	SourceGMGN          = "gmgn"
)

// DefaultSourcePriority is the ordering used when none is configured.
var DefaultSourcePriority = []string{
	SourceCoinMarketCap,
	SourceCoinGecko,
	SourceDexTools,
	SourceDexScreener,
	SourceBirdeye,
	SourceGMGN,
}

// Project document field names
const (
	FieldProjectUID     = "project_uid"
	FieldProjectName    = "project_name"
	FieldProjectTicker  = "project_ticker"
	FieldCreatedAt      = "created_at"
	FieldSources        = "sources"
	FieldCategory       = "category"
	FieldNetwork        = "network"
	FieldExchanges      = "exchanges"
	FieldSocials        = "socials"
	FieldTelegramAdmins = "telegram_admins"
	FieldMarketCap      = "market_cap"
	FieldAbout          = "about"
	FieldImportantNote  = "important_note"
	FieldLinks          = "links"
)

// ProtectedKeys can only be populated while empty on an existing record.
var ProtectedKeys = []string{
	FieldProjectUID,
	FieldProjectName,
	FieldProjectTicker,
	FieldCreatedAt,
}

// Admin record fields
const (
	AdminUsername  = "username"
	AdminFirstName = "first_name"
	AdminLastName  = "last_name"
	AdminStatus    = "status"
	AdminRoleTitle = "role_title"
)

// AdminRole is the status an admin holds in a Telegram channel or group.
type AdminRole string

const (
	// AdminStatusOwner is the channel creator
	AdminStatusOwner AdminRole = "owner"
	// AdminStatusAdmin is any other administrator
	AdminStatusAdmin AdminRole = "admin"
)

// FieldKind selects the merge strategy applied to a document field.
type FieldKind int

const (
	// KindScalar fields hold a single value resolved by preference.
	KindScalar FieldKind = iota
	// KindList fields are de-duplicated unions.
	KindList
	// KindLinkMap fields map a channel key to a list of links.
	KindLinkMap
	// KindRoster fields are record lists merged by identity.
	KindRoster
	// KindNested fields are objects merged key by key.
	KindNested
)

// String returns the name of the field kind.
func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindLinkMap:
		return "link_map"
	case KindRoster:
		return "roster"
	case KindNested:
		return "nested"
	default:
		return "unknown"
	}
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// Without returns a deep copy of the document minus the given keys.
func (d Document) Without(keys ...string) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// String returns the value at key when it is a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// SortedKeys returns the document keys in lexical order.
func (d Document) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CloneValue deep-copies JSON-like values. Maps and slices are copied
// recursively, everything else is returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = CloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = CloneValue(inner)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, inner := range t {
			out[k] = inner
		}
		return out
	default:
		return v
	}
}
