package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/project-reconciler/internal/types"
)

// Warning describes a field that had an unexpected shape and was coerced.
type Warning struct {
	Field  string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Reason)
}

// WarnFunc receives malformed-field warnings. It may be nil.
type WarnFunc func(Warning)

var (
	ecosystemRegex  = regexp.MustCompile(`(?i)\becosystem\b`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

var legacyAdminKeys = map[string]string{
	"telegram_username":   types.AdminUsername,
	"telegram_name":       types.AdminFirstName,
	"telegram_role_title": types.AdminRoleTitle,
}

// SanitizePayload returns a copy of doc with every known field coerced to
// its canonical shape. It never fails; anything it cannot use is dropped
// and reported through warn.
func SanitizePayload(doc types.Document, warn WarnFunc) types.Document {
	if warn == nil {
		warn = func(Warning) {}
	}
	out := doc.Clone()
	if out == nil {
		out = types.Document{}
	}

	for _, key := range []string{types.FieldProjectName, types.FieldProjectTicker} {
		if v, ok := out[key]; ok {
			if s, isStr := v.(string); isStr {
				out[key] = strings.TrimSpace(s)
			} else if v != nil {
				out[key] = strings.TrimSpace(fmt.Sprint(v))
				warn(Warning{Field: key, Reason: fmt.Sprintf("expected string, got %T", v)})
			}
		}
	}

	sanitizeLinks(out, warn)
	sanitizeSocials(out, warn)
	for _, key := range []string{types.FieldCategory, types.FieldNetwork, types.FieldExchanges} {
		sanitizeStringList(out, key, warn)
	}
	routeEcosystems(out)
	sanitizeMarketCap(out, warn)
	sanitizeAdmins(out, warn)
	sanitizeSources(out, warn)

	return out
}

// sanitizeLinks folds a flat "links" array into socials.
func sanitizeLinks(doc types.Document, warn WarnFunc) {
	raw, ok := doc[types.FieldLinks]
	if !ok {
		return
	}
	delete(doc, types.FieldLinks)

	items, dropped := StringList(raw)
	if dropped > 0 {
		warn(Warning{Field: types.FieldLinks, Reason: fmt.Sprintf("dropped %d non-string items", dropped)})
	}
	links := make([]string, 0, len(items))
	for _, item := range items {
		links = append(links, item.(string))
	}
	grouped := LinksToSocials(links)
	if len(grouped) == 0 {
		return
	}

	socials, isMap := doc[types.FieldSocials].(map[string]any)
	if !isMap {
		if doc[types.FieldSocials] != nil {
			// left for sanitizeSocials to report
			return
		}
		socials = map[string]any{}
	}
	for channel, list := range grouped {
		socials[channel] = append(EnsureList(socials[channel]), list.([]any)...)
	}
	doc[types.FieldSocials] = socials
}

func sanitizeSocials(doc types.Document, warn WarnFunc) {
	raw, ok := doc[types.FieldSocials]
	if !ok {
		return
	}
	if raw == nil {
		delete(doc, types.FieldSocials)
		return
	}
	socials, isMap := raw.(map[string]any)
	if !isMap {
		warn(Warning{Field: types.FieldSocials, Reason: fmt.Sprintf("expected mapping, got %T", raw)})
		delete(doc, types.FieldSocials)
		return
	}

	out := make(map[string]any, len(socials))
	for channel, value := range socials {
		items, dropped := StringList(value)
		if dropped > 0 {
			warn(Warning{
				Field:  types.FieldSocials + "." + channel,
				Reason: fmt.Sprintf("dropped %d non-string items", dropped),
			})
		}
		if channel == SocialEmail {
			for i, item := range items {
				items[i] = CleanEmailLink(item.(string))
			}
		}
		if len(items) == 0 {
			continue
		}
		out[channel] = items
	}
	if len(out) == 0 {
		delete(doc, types.FieldSocials)
		return
	}
	doc[types.FieldSocials] = out
}

func sanitizeStringList(doc types.Document, key string, warn WarnFunc) {
	raw, ok := doc[key]
	if !ok {
		return
	}
	if raw == nil {
		delete(doc, key)
		return
	}
	if _, isList := raw.([]any); !isList {
		if _, isStrings := raw.([]string); !isStrings {
			warn(Warning{Field: key, Reason: fmt.Sprintf("expected list, got %T; wrapped", raw)})
		}
	}
	items, dropped := StringList(raw)
	if dropped > 0 {
		warn(Warning{Field: key, Reason: fmt.Sprintf("dropped %d non-string items", dropped)})
	}
	doc[key] = items
}

// routeEcosystems moves category tags naming an ecosystem into network,
// e.g. "Ethereum Ecosystem" becomes the network "Ethereum".
func routeEcosystems(doc types.Document) {
	categories, ok := doc[types.FieldCategory].([]any)
	if !ok {
		return
	}

	keep := make([]any, 0, len(categories))
	var moved []any
	for _, item := range categories {
		s := item.(string)
		cleaned := collapseSpaces(strings.ReplaceAll(s, "-", " "))
		if !ecosystemRegex.MatchString(cleaned) {
			keep = append(keep, s)
			continue
		}
		if network := collapseSpaces(ecosystemRegex.ReplaceAllString(cleaned, "")); network != "" {
			moved = append(moved, network)
		}
	}
	if len(keep) == len(categories) {
		return
	}

	doc[types.FieldCategory] = keep
	if len(moved) > 0 {
		networks, _ := doc[types.FieldNetwork].([]any)
		doc[types.FieldNetwork] = append(networks, moved...)
	}
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

func sanitizeMarketCap(doc types.Document, warn WarnFunc) {
	raw, ok := doc[types.FieldMarketCap]
	if !ok {
		return
	}

	var amount float64
	switch v := raw.(type) {
	case nil:
		delete(doc, types.FieldMarketCap)
		return
	case string:
		if strings.TrimSpace(v) == "" {
			delete(doc, types.FieldMarketCap)
			return
		}
		parsed, okParse := ParseDollarAmount(v)
		if !okParse {
			warn(Warning{Field: types.FieldMarketCap, Reason: fmt.Sprintf("unparseable amount %q kept verbatim", v)})
			doc[types.FieldMarketCap] = strings.TrimSpace(v)
			return
		}
		amount = parsed
	case float64:
		amount = v
	case int:
		amount = float64(v)
	case int64:
		amount = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			warn(Warning{Field: types.FieldMarketCap, Reason: fmt.Sprintf("invalid number %q", v.String())})
			delete(doc, types.FieldMarketCap)
			return
		}
		amount = parsed
	default:
		warn(Warning{Field: types.FieldMarketCap, Reason: fmt.Sprintf("unsupported type %T", raw)})
		delete(doc, types.FieldMarketCap)
		return
	}

	// a zero market cap means the source had no figure
	if amount == 0 {
		delete(doc, types.FieldMarketCap)
		return
	}
	doc[types.FieldMarketCap] = amount
}

func sanitizeAdmins(doc types.Document, warn WarnFunc) {
	raw, ok := doc[types.FieldTelegramAdmins]
	if !ok {
		return
	}
	if raw == nil {
		delete(doc, types.FieldTelegramAdmins)
		return
	}
	items, isList := raw.([]any)
	if !isList {
		if m, isMap := raw.(map[string]any); isMap {
			warn(Warning{Field: types.FieldTelegramAdmins, Reason: "expected list, got single record; wrapped"})
			items = []any{m}
		} else {
			warn(Warning{Field: types.FieldTelegramAdmins, Reason: fmt.Sprintf("expected list, got %T", raw)})
			delete(doc, types.FieldTelegramAdmins)
			return
		}
	}

	out := make([]any, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			if username := cleanUsername(v); username != "" {
				out = append(out, map[string]any{types.AdminUsername: username})
			}
		case map[string]any:
			if admin := sanitizeAdmin(v); len(admin) > 0 {
				out = append(out, admin)
			}
		default:
			warn(Warning{
				Field:  fmt.Sprintf("%s[%d]", types.FieldTelegramAdmins, i),
				Reason: fmt.Sprintf("unsupported admin entry %T dropped", item),
			})
		}
	}
	doc[types.FieldTelegramAdmins] = out
}

func sanitizeAdmin(raw map[string]any) map[string]any {
	admin := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		admin[k] = v
	}
	for legacy, current := range legacyAdminKeys {
		if v, ok := admin[legacy]; ok {
			if IsEmpty(admin[current]) && !IsEmpty(v) {
				admin[current] = v
			}
			delete(admin, legacy)
		}
	}
	if username, ok := admin[types.AdminUsername].(string); ok {
		if cleaned := cleanUsername(username); cleaned != "" {
			admin[types.AdminUsername] = cleaned
		} else {
			delete(admin, types.AdminUsername)
		}
	}

	onlyStatus := true
	for k, v := range admin {
		if k != types.AdminStatus && !IsEmpty(v) {
			onlyStatus = false
			break
		}
	}
	if onlyStatus {
		return nil
	}
	// an absent status stays absent so it cannot outvote one on record
	if status, ok := admin[types.AdminStatus]; ok {
		if role, known := normalizeAdminStatus(status); known {
			admin[types.AdminStatus] = string(role)
		} else {
			delete(admin, types.AdminStatus)
		}
	}
	return admin
}

func cleanUsername(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// normalizeAdminStatus maps a reported status onto a role. known is false
// for empty or non-string values.
func normalizeAdminStatus(v any) (role types.AdminRole, known bool) {
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", false
	case "owner", "creator":
		return types.AdminStatusOwner, true
	default:
		return types.AdminStatusAdmin, true
	}
}

// DefaultAdminStatuses sets status "admin" on every telegram_admins record
// of doc that still has none. It runs on merged records, never on payloads.
func DefaultAdminStatuses(doc types.Document) {
	admins, ok := doc[types.FieldTelegramAdmins].([]any)
	if !ok {
		return
	}
	for _, item := range admins {
		if admin, isMap := item.(map[string]any); isMap && IsEmpty(admin[types.AdminStatus]) {
			admin[types.AdminStatus] = string(types.AdminStatusAdmin)
		}
	}
}

func sanitizeSources(doc types.Document, warn WarnFunc) {
	raw, ok := doc[types.FieldSources]
	if !ok {
		return
	}
	if raw == nil {
		delete(doc, types.FieldSources)
		return
	}
	sources, isMap := raw.(map[string]any)
	if !isMap {
		warn(Warning{Field: types.FieldSources, Reason: fmt.Sprintf("expected mapping, got %T", raw)})
		delete(doc, types.FieldSources)
		return
	}

	out := make(map[string]any, len(sources))
	for key, value := range sources {
		source := NormalizeSourceID(key)
		if source == "" {
			continue
		}
		switch v := value.(type) {
		case string:
			out[source] = strings.TrimSpace(v)
		case map[string]any:
			url, _ := v["url"].(string)
			out[source] = strings.TrimSpace(url)
		case nil:
			out[source] = ""
		default:
			warn(Warning{Field: types.FieldSources + "." + key, Reason: fmt.Sprintf("unsupported url type %T", value)})
			out[source] = ""
		}
	}
	doc[types.FieldSources] = out
}

// NormalizeSourceID returns the canonical form of a source identifier.
func NormalizeSourceID(source string) string {
	return strings.ToLower(strings.TrimSpace(source))
}
