// Package attribution reads ad-click identifiers from landing URLs and the
// ad platform's first-party browser cookies.
package attribution

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/logging"
)

const (
	// BrowserCookie holds the persistent browser id.
	BrowserCookie = "_fbp"
	// ClickCookie holds the click-attribution id.
	ClickCookie = "_fbc"

	clickPrefix = "fb.1."
)

// Params are the raw marketing parameters found on the landing URL.
type Params struct {
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	FBCLID      string `json:"fbclid,omitempty"`
	GCLID       string `json:"gclid,omitempty"`
}

// FromURL extracts the attribution block and marketing parameters from raw.
// An empty or unparseable URL yields zero values. Identifiers that are not
// digit strings are dropped with a warning.
func FromURL(ctx context.Context, raw string) (types.Attribution, Params) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.Attribution{}, Params{}
	}
	u, err := url.Parse(raw)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("attribution: unparseable source url")
		return types.Attribution{}, Params{}
	}
	q := u.Query()

	a, dropped := types.Attribution{
		AdID:       types.AttributionID(strings.TrimSpace(q.Get("ad_id"))),
		AdSetID:    types.AttributionID(strings.TrimSpace(q.Get("adset_id"))),
		CampaignID: types.AttributionID(strings.TrimSpace(q.Get("campaign_id"))),
	}.Normalize()
	if len(dropped) > 0 {
		logging.FromContext(ctx).Warn().Strs("fields", dropped).Msg("attribution: dropped non-numeric ids")
	}

	return a, Params{
		UTMSource:   q.Get("utm_source"),
		UTMMedium:   q.Get("utm_medium"),
		UTMCampaign: q.Get("utm_campaign"),
		UTMTerm:     q.Get("utm_term"),
		UTMContent:  q.Get("utm_content"),
		FBCLID:      q.Get("fbclid"),
		GCLID:       q.Get("gclid"),
	}
}

// Cookies returns the browser id and click-attribution cookie values from r.
func Cookies(r *http.Request) (fbp, fbc string) {
	if c, err := r.Cookie(BrowserCookie); err == nil {
		fbp = c.Value
	}
	if c, err := r.Cookie(ClickCookie); err == nil {
		fbc = c.Value
	}
	return fbp, fbc
}

// MakeClickCookie formats a click id as the vendor's click-attribution value,
// fb.1.<unix_seconds>.<click_id>. The click id is copied verbatim; the vendor
// treats it as case sensitive.
func MakeClickCookie(clickID string, now time.Time) string {
	if clickID == "" {
		return ""
	}
	return clickPrefix + strconv.FormatInt(now.Unix(), 10) + "." + clickID
}

// ExtractClickID returns the click id embedded in a click-attribution value,
// or "" if the value is not in the vendor format.
func ExtractClickID(fbc string) string {
	if !strings.HasPrefix(fbc, clickPrefix) {
		return ""
	}
	rest := fbc[len(clickPrefix):]
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 {
		return ""
	}
	if _, err := strconv.ParseInt(rest[:dot], 10, 64); err != nil {
		return ""
	}
	return rest[dot+1:]
}

// ResolveClickCookie returns fbc when present, otherwise synthesizes one from
// the raw click id.
func ResolveClickCookie(fbc, clickID string, now time.Time) string {
	if fbc != "" {
		return fbc
	}
	return MakeClickCookie(clickID, now)
}
