package config

import (
	"regexp"
	"strconv"
	"strings"
)

// constantLine matches "c<N>[suffix] - value" where suffix is a single list
// letter, "_count" or "_type".
var constantLine = regexp.MustCompile(`^\s*c(\d+)([a-z]|_count|_type)?\s*-\s*(.+)$`)

// ApplyConstants parses the numbered shorthand used by shop owners to fill
// in their page ("c1 - Shop name", "c4_count - 2", "c4a - Dresses", ...)
// and copies recognised values into c. Blank lines and "//" comments are
// skipped; lines that do not match the shorthand are returned.
func (c *Config) ApplyConstants(text string) []string {
	consts := make(map[string]string)
	var unparsed []string

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		m := constantLine.FindStringSubmatch(line)
		if m == nil {
			unparsed = append(unparsed, line)
			continue
		}
		consts["c"+m[1]+m[2]] = strings.TrimSpace(m[3])
	}

	p := &c.Profile
	set := func(key string, dst *string) {
		if v, ok := consts[key]; ok {
			*dst = v
		}
	}

	set("c1", &p.ShopName)
	set("c2", &p.ShopDescription)
	set("c3", &p.WorkingHours)
	if list := constantList(consts, "c4"); list != nil {
		p.Categories = list
	}
	set("c5", &p.FOPName)
	set("c6", &p.EDRPOU)
	set("c7", &p.IBAN)
	set("c8", &p.BankName)
	set("c9", &p.PaymentPurpose)
	set("c10", &p.CardNumber)
	set("c11", &p.CardHolderName)
	set("c12", &p.CardBankName)
	if v, ok := consts["c13"]; ok {
		if consts["c13_type"] == "phone" {
			p.TelegramPhone = v
		} else {
			p.TelegramUsername = v
		}
	}
	set("c14", &p.ViberPhone)
	set("c15", &p.TelegramShowcase)
	set("c16", &p.InstagramUsername)
	set("c17", &p.BiggoLiveURL)
	set("c18", &p.FacebookPage)
	set("c19", &p.TikTokUsername)
	set("c20", &p.YouTubeChannel)
	set("c21", &p.WhatsAppPhone)
	set("c22", &c.Calendar.Reference)

	if list := constantList(consts, "c23"); list != nil {
		locs := make([]StoreLocation, 0, len(list))
		for _, item := range list {
			parts := strings.Split(item, "|")
			if len(parts) != 2 {
				unparsed = append(unparsed, item)
				continue
			}
			locs = append(locs, StoreLocation{Name: parts[0], URL: parts[1]})
		}
		p.StoreLocations = locs
	}
	if list := constantList(consts, "c24"); list != nil {
		p.PaymentOptions = list
	}

	set("c25", &p.DeliveryMethod)
	set("c26", &p.DeliveryTime)
	set("c27", &p.DeliveryNote)
	if v, ok := consts["c28"]; ok {
		p.ExchangeDays = leadingInt(v)
	}
	if v, ok := consts["c29"]; ok {
		p.ReturnDays = leadingInt(v)
	}
	if list := constantList(consts, "c30"); list != nil {
		p.ReturnConditions = list
	}
	set("c31", &p.ReturnMoneyTime)
	set("c32", &p.ReturnDeliveryCost)
	if v, ok := consts["c33"]; ok {
		p.AfterPaymentTemplate = strings.ReplaceAll(v, `\n`, "\n")
	}

	return unparsed
}

// constantList reads prefix+"_count" and collects prefix+"a", prefix+"b", ...
// Missing letters are skipped. It returns nil when no count is present.
func constantList(consts map[string]string, prefix string) []string {
	v, ok := consts[prefix+"_count"]
	if !ok {
		return nil
	}
	n := leadingInt(v)
	if n > 26 {
		n = 26
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if item, ok := consts[prefix+string(rune('a'+i))]; ok {
			out = append(out, item)
		}
	}
	return out
}

// leadingInt parses the leading decimal digits of s, returning 0 when there
// are none ("14 днів" -> 14).
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
