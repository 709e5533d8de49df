// Package profile turns the configured business constants into the page
// model served at /api/profile: messenger deep-links, payment details and
// the exchange/return policy lines.
package profile

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"storefront/internal/calendar"
	"storefront/internal/config"
	appLog "storefront/internal/log"
)

var (
	ibanRe     = regexp.MustCompile(`(?i)^UA\d{2}[A-Z0-9]{4}(\d{19}|\d{21})$`)
	edrpouRe   = regexp.MustCompile(`^\d{8}(\d{2})?$`)
	phoneRe    = regexp.MustCompile(`^(0\d{9}|380\d{9}|\+380\d{9})$`)
	digitsRe   = regexp.MustCompile(`^\+?\d{10,}$`)
	biggoUser  = regexp.MustCompile(`/user/([^/?]+)`)
	spaceDash  = regexp.MustCompile(`[\s-]`)
	whitespace = regexp.MustCompile(`\s`)
)

// Link is one contact channel as the page shows it.
type Link struct {
	Kind    string `json:"kind"`
	Display string `json:"display"`
	URL     string `json:"url,omitempty"`
	// Copy is what the copy button puts on the clipboard.
	Copy string `json:"copy"`
}

// PolicyLine is one bullet of the exchange/return section.
type PolicyLine struct {
	Icon  string   `json:"icon"`
	Title string   `json:"title"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Page is the business profile with everything derived that the page needs.
type Page struct {
	Profile config.Profile `json:"profile"`

	Links          []Link       `json:"links"`
	ReturnPolicy   []PolicyLine `json:"return_policy"`
	CalendarTitle  string       `json:"calendar_title"`
	CalendarEmbed  string       `json:"calendar_embed,omitempty"`
	CalendarExport string       `json:"calendar_export,omitempty"`

	// Warnings lists details that look malformed. They never block the page.
	Warnings []string `json:"warnings"`
}

// Build derives the page model from p. reference is the calendar reference
// and tz the display timezone used for the embedded agenda.
func Build(p config.Profile, reference, tz string) Page {
	page := Page{
		Profile:       p,
		Links:         Links(p),
		ReturnPolicy:  ReturnPolicy(p),
		CalendarTitle: CalendarTitle(p.ShopName),
		Warnings:      Validate(p),
	}
	for _, w := range page.Warnings {
		appLog.Warn("profile: suspicious value", "detail", w)
	}

	if id, err := calendar.Resolve(reference); err == nil {
		page.CalendarEmbed = calendar.EmbedURL(id, tz)
		page.CalendarExport = "/calendar.ics"
	}
	return page
}

// CalendarTitle is the heading above the live schedule.
func CalendarTitle(shopName string) string {
	if shopName == "" {
		return "Розклад прямих ефірів"
	}
	return shopName + ": Розклад прямих ефірів"
}

// Validate reports payment and contact details that fail the format checks.
func Validate(p config.Profile) []string {
	warnings := []string{}
	if p.IBAN != "" && !ValidIBAN(p.IBAN) {
		warnings = append(warnings, "IBAN може бути невалідним: "+p.IBAN)
	}
	if p.EDRPOU != "" && !ValidEDRPOU(p.EDRPOU) {
		warnings = append(warnings, "ЄДРПОУ може бути невалідним: "+p.EDRPOU)
	}
	if p.ViberPhone != "" && !ValidPhone(p.ViberPhone) {
		warnings = append(warnings, "Номер телефону може бути невалідним: "+p.ViberPhone)
	}
	return warnings
}

// ValidIBAN accepts Ukrainian IBANs: UA, two check digits, a four character
// bank code and a 19 or 21 digit account. Whitespace is ignored.
func ValidIBAN(iban string) bool {
	return ibanRe.MatchString(whitespace.ReplaceAllString(iban, ""))
}

// ValidEDRPOU accepts 8 or 10 digits, ignoring spaces and dashes.
func ValidEDRPOU(code string) bool {
	return edrpouRe.MatchString(spaceDash.ReplaceAllString(code, ""))
}

// ValidPhone accepts 0XXXXXXXXX, 380XXXXXXXXX and +380XXXXXXXXX.
func ValidPhone(phone string) bool {
	return phoneRe.MatchString(spaceDash.ReplaceAllString(phone, ""))
}

// FormatPhone strips spaces and dashes and writes Ukrainian numbers as
// +380XXXXXXXXX. Input that is not recognisably Ukrainian is returned
// unchanged.
func FormatPhone(phone string) string {
	cleaned := spaceDash.ReplaceAllString(phone, "")
	switch {
	case len(cleaned) == 10 && strings.HasPrefix(cleaned, "0"):
		return "+380" + cleaned[1:]
	case strings.HasPrefix(cleaned, "+380"):
		return cleaned
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "380"):
		return "+" + cleaned
	}
	return phone
}

// TelegramURL builds a t.me link from a link, a phone number or a username.
func TelegramURL(value string) string {
	switch {
	case value == "":
		return ""
	case strings.Contains(value, "t.me/") || strings.HasPrefix(value, "http"):
		if strings.HasPrefix(value, "http") {
			return value
		}
		return "https://" + value
	case digitsRe.MatchString(spaceDash.ReplaceAllString(value, "")):
		return "https://t.me/+" + strings.TrimPrefix(FormatPhone(value), "+")
	default:
		return "https://t.me/" + strings.TrimPrefix(value, "@")
	}
}

// IsTelegramInvite reports whether link is a private t.me/+ invite.
func IsTelegramInvite(link string) bool {
	return strings.Contains(link, "t.me/+")
}

// ShowcaseURL is the link to the Telegram showcase channel or group.
func ShowcaseURL(showcase string) string {
	switch {
	case showcase == "":
		return ""
	case IsTelegramInvite(showcase) && strings.HasPrefix(showcase, "http"):
		return showcase
	case IsTelegramInvite(showcase):
		return "https://" + showcase
	default:
		return "https://t.me/" + strings.TrimPrefix(showcase, "@")
	}
}

// ShowcaseDisplay is an invite link shown as-is or a username with @.
func ShowcaseDisplay(showcase string) string {
	switch {
	case showcase == "":
		return ""
	case IsTelegramInvite(showcase):
		return ShowcaseURL(showcase)
	default:
		return "@" + strings.TrimPrefix(showcase, "@")
	}
}

// ViberURL opens a chat with phone, written in international form.
func ViberURL(phone string) string {
	national := whitespace.ReplaceAllString(strings.Replace(phone, "+380", "0", 1), "")
	return "viber://chat?number=" + url.QueryEscape(FormatPhone(national))
}

// WhatsAppURL opens a chat on wa.me, which wants digits only.
func WhatsAppURL(phone string) string {
	digits := strings.TrimPrefix(FormatPhone(spaceDash.ReplaceAllString(phone, "")), "+")
	return "https://wa.me/" + digits
}

// BiggoUsername extracts the account name from a BIGGO LIVE profile URL.
// It prefers the segment after /user/ and falls back to the last path
// segment.
func BiggoUsername(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		if m := biggoUser.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
		return ""
	}
	parts := strings.Split(u.Path, "/")
	for i, part := range parts {
		if part == "user" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return parts[len(parts)-1]
}

func socialURL(base, value string) string {
	if strings.HasPrefix(value, "http") {
		return value
	}
	return base + strings.TrimPrefix(value, "@")
}

// Links lists every configured contact channel in page order.
func Links(p config.Profile) []Link {
	links := []Link{}

	switch {
	case p.TelegramPhone != "":
		phone := FormatPhone(p.TelegramPhone)
		links = append(links, Link{Kind: "telegram", Display: phone, URL: TelegramURL(p.TelegramPhone), Copy: phone})
	case p.TelegramUsername != "":
		name := "@" + strings.TrimPrefix(p.TelegramUsername, "@")
		links = append(links, Link{Kind: "telegram", Display: name, URL: TelegramURL(p.TelegramUsername), Copy: name})
	}

	if p.ViberPhone != "" {
		phone := FormatPhone(p.ViberPhone)
		links = append(links, Link{Kind: "viber", Display: phone, URL: ViberURL(p.ViberPhone), Copy: phone})
	}

	if p.TelegramShowcase != "" {
		display := ShowcaseDisplay(p.TelegramShowcase)
		if IsTelegramInvite(p.TelegramShowcase) {
			display = "Телеграм-спільнота"
		}
		links = append(links, Link{
			Kind:    "telegram_showcase",
			Display: display,
			URL:     ShowcaseURL(p.TelegramShowcase),
			Copy:    ShowcaseURL(p.TelegramShowcase),
		})
	}

	if p.InstagramUsername != "" {
		name := strings.TrimPrefix(p.InstagramUsername, "@")
		links = append(links, Link{Kind: "instagram", Display: "@" + name, URL: "https://instagram.com/" + name, Copy: "@" + name})
	}

	// BIGGO LIVE has no web deep-link worth opening; the page offers the
	// username to copy into the app.
	if user := BiggoUsername(p.BiggoLiveURL); user != "" {
		links = append(links, Link{Kind: "biggo", Display: user, Copy: user})
	}

	if p.FacebookPage != "" {
		u := socialURL("https://facebook.com/", p.FacebookPage)
		links = append(links, Link{Kind: "facebook", Display: p.FacebookPage, URL: u, Copy: u})
	}
	if p.TikTokUsername != "" {
		name := strings.TrimPrefix(p.TikTokUsername, "@")
		links = append(links, Link{Kind: "tiktok", Display: "@" + name, URL: "https://www.tiktok.com/@" + name, Copy: "@" + name})
	}
	if p.YouTubeChannel != "" {
		u := socialURL("https://www.youtube.com/@", p.YouTubeChannel)
		links = append(links, Link{Kind: "youtube", Display: p.YouTubeChannel, URL: u, Copy: u})
	}
	if p.WhatsAppPhone != "" {
		phone := FormatPhone(p.WhatsAppPhone)
		links = append(links, Link{Kind: "whatsapp", Display: phone, URL: WhatsAppURL(p.WhatsAppPhone), Copy: phone})
	}

	return links
}

// ReturnPolicy renders the exchange/return bullets. When neither exchange
// nor return is offered the result is the single "not available" line.
func ReturnPolicy(p config.Profile) []PolicyLine {
	if p.ExchangeDays <= 0 && p.ReturnDays <= 0 {
		return []PolicyLine{{Icon: "ℹ️", Title: "Обмін та повернення товару недоступні згідно з умовами продавця."}}
	}

	lines := []PolicyLine{}
	if p.ExchangeDays > 0 {
		lines = append(lines, PolicyLine{
			Icon:  "🔄",
			Title: "Обмін:",
			Text:  fmt.Sprintf("відповідно до законодавства України, у вас є право на обмін товару протягом %d днів з моменту отримання (окрім товарів, визначених законодавством)", p.ExchangeDays),
		})
	}
	if p.ReturnDays > 0 {
		lines = append(lines, PolicyLine{
			Icon:  "↩️",
			Title: "Повернення:",
			Text:  fmt.Sprintf("відповідно до законодавства України, у вас є право на повернення товару протягом %d днів з моменту отримання (окрім товарів, визначених законодавством)", p.ReturnDays),
		})
	}

	lines = append(lines,
		PolicyLine{Icon: "👕", Title: "Умови обміну/повернення одягу та аксесуарів:", Items: p.ReturnConditions},
		PolicyLine{Icon: "📞", Title: "Для обміну/повернення:", Text: "зв'яжіться з менеджером через Viber або Telegram"},
	)

	if p.ReturnMoneyTime != "" {
		lines = append(lines, PolicyLine{
			Icon:  "💰",
			Title: "Повернення коштів:",
			Text:  fmt.Sprintf("здійснюється на ті самі реквізити, з яких була здійснена оплата, протягом %s після отримання товару назад", p.ReturnMoneyTime),
		})
	}
	if p.ReturnDeliveryCost != "" {
		lines = append(lines, PolicyLine{Icon: "🚚", Title: "Вартість доставки:", Text: p.ReturnDeliveryCost})
	}
	return lines
}
