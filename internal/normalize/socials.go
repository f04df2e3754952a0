package normalize

import "strings"

// Social channel keys used under a project's socials map.
const (
	SocialWebsite   = "website"
	SocialTelegram  = "telegram_link"
	SocialTwitter   = "twitter_link"
	SocialDiscord   = "discord_link"
	SocialEmail     = "email_link"
	SocialLinkedIn  = "linkedin_link"
	SocialFacebook  = "facebook_link"
	SocialInstagram = "instagram_link"
	SocialTikTok    = "tiktok_link"
	SocialYouTube   = "youtube_link"
	SocialMedium    = "medium_link"
	SocialReddit    = "reddit_link"
	SocialGitHub    = "github_link"
)

// socialKeywords is checked in order; the first keyword found in a link wins.
var socialKeywords = []struct {
	keyword string
	channel string
}{
	{"mailto:", SocialEmail},
	{"t.me", SocialTelegram},
	{"telegram", SocialTelegram},
	{"twitter.com", SocialTwitter},
	{"x.com", SocialTwitter},
	{"discord", SocialDiscord},
	{"linkedin", SocialLinkedIn},
	{"facebook", SocialFacebook},
	{"instagram", SocialInstagram},
	{"tiktok", SocialTikTok},
	{"youtube", SocialYouTube},
	{"medium", SocialMedium},
	{"reddit", SocialReddit},
	{"github", SocialGitHub},
}

// ClassifySocialLink returns the socials channel a link belongs to, or ""
// when the link is not recognised.
func ClassifySocialLink(link string) string {
	lower := strings.ToLower(strings.TrimSpace(link))
	if lower == "" {
		return ""
	}
	for _, kw := range socialKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.channel
		}
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return SocialWebsite
	}
	if strings.Contains(lower, "@") && !strings.ContainsAny(lower, " /") {
		return SocialEmail
	}
	return ""
}

// CleanEmailLink strips a mailto: prefix.
func CleanEmailLink(link string) string {
	s := strings.TrimSpace(link)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = strings.TrimSpace(s[7:])
	}
	return s
}

// LinksToSocials groups a flat list of links into a socials map. Unknown
// links are skipped. Duplicates compare by normalised link.
func LinksToSocials(links []string) map[string]any {
	out := make(map[string]any)
	seen := make(map[string]struct{})
	for _, link := range links {
		channel := ClassifySocialLink(link)
		if channel == "" {
			continue
		}
		value := strings.TrimSpace(link)
		if channel == SocialEmail {
			value = CleanEmailLink(value)
		}
		key := channel + "|" + NormalizeLink(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		list, _ := out[channel].([]any)
		out[channel] = append(list, value)
	}
	return out
}
