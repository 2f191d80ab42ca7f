package chat

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"ensemble-relay/tools/errs"
)

type Kind string

const (
	KindText     Kind = "text"
	KindLocation Kind = "location"
)

// Content is the tagged union carried by a ChatMessage: Text for KindText,
// Lat/Lon for KindLocation.
type Content struct {
	Kind Kind
	Text string
	Lat  float64
	Lon  float64
}

func TextContent(s string) Content { return Content{Kind: KindText, Text: s} }

func LocationContent(lat, lon float64) Content {
	return Content{Kind: KindLocation, Lat: lat, Lon: lon}
}

// Validate checks the content against maxLen runes (text only; <=0 disables).
func (c Content) Validate(maxLen int) error {
	switch c.Kind {
	case KindText:
		if strings.TrimSpace(c.Text) == "" {
			return errs.ErrEmptyMessage.Wrap()
		}
		if maxLen > 0 && utf8.RuneCountInString(c.Text) > maxLen {
			return errs.ErrMessageTooLong.WrapMsg("", "max", maxLen)
		}
		return nil
	case KindLocation:
		if !validCoord(c.Lat, 90) || !validCoord(c.Lon, 180) {
			return errs.ErrInvalidLocation.WrapMsg("", "lat", c.Lat, "lon", c.Lon)
		}
		return nil
	default:
		return errs.ErrBadPayload.WrapMsg("unknown kind", "kind", c.Kind)
	}
}

func validCoord(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// Body is the text rendering used in the legacy `message` field: the text
// itself, or a maps URL for a location.
func (c Content) Body() string {
	if c.Kind == KindLocation {
		return MapsURL(c.Lat, c.Lon)
	}
	return c.Text
}

// ChatMessage is one relayed event. It is never mutated after creation.
type ChatMessage struct {
	ID              string
	SenderID        string
	SenderName      string
	SenderAvatarRef string
	Content         Content
	Timestamp       time.Time
}

const mapsBase = "https://www.google.com/maps?q="

func MapsURL(lat, lon float64) string {
	return mapsBase + strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// ParseLegacyLocation recognizes the maps links older clients put in the
// text field:
//
//	https://www.google.com/maps?q=<lat>,<lon>
//	https://maps.google.com/?q=<lat>,<lon>
//	https://www.google.com/maps/search/?api=1&query=<lat>,<lon>
func ParseLegacyLocation(text string) (lat, lon float64, ok bool) {
	text = strings.TrimSpace(text)
	if strings.ContainsAny(text, " \t\n") {
		return 0, 0, false
	}
	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return 0, 0, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "google.com" && strings.HasPrefix(u.Path, "/maps"):
	case host == "maps.google.com":
	default:
		return 0, 0, false
	}
	q := u.Query()
	pair := q.Get("q")
	if pair == "" {
		pair = q.Get("query")
	}
	lat, lon, err = parsePair(pair)
	if err != nil || !validCoord(lat, 90) || !validCoord(lon, 180) {
		return 0, 0, false
	}
	return lat, lon, true
}

func parsePair(s string) (float64, float64, error) {
	a, b, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, fmt.Errorf("no comma in %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
