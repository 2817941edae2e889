// Package ingest is the post ingestion pipeline: it normalizes the raw,
// provider-version-dependent items coming back from the scraper, attributes
// each post to the best-matching tracked profile, and upserts the result
// keyed by (user, urn).
package ingest

import (
	"errors"
	"strconv"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

// ErrUnidentifiable marks a raw item with no urn or id. Such a post cannot
// be keyed and is never stored.
var ErrUnidentifiable = errors.New("post has no urn or id")

// Fields is the canonical set of post fields extracted from one raw item.
type Fields struct {
	URN              string
	PostURL          string
	Text             string
	AuthorName       string
	AuthorTitle      string
	AuthorProfileURL string
	AuthorPublicID   string
	Image            string
	Images           []string
	PostedAtISO      *string
	PostedAtTS       *int64
	TimeSincePosted  string
	NumLikes         int64
	NumComments      int64
	NumShares        int64
}

// An accessor tries to pull one value out of a raw item. Each canonical
// field is an ordered list of accessors tried until one reports presence,
// so supporting a new provider synonym is a one-line addition.
type accessor func(raw linkpulse.RawPost) (any, bool)

func field(name string) accessor {
	return func(raw linkpulse.RawPost) (any, bool) {
		v, ok := raw[name]
		return v, ok
	}
}

// nested walks a path of object keys, e.g. nested("author", "name").
func nested(path ...string) accessor {
	return func(raw linkpulse.RawPost) (any, bool) {
		var cur any = map[string]any(raw)
		for _, key := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = m[key]; !ok {
				return nil, false
			}
		}

		return cur, true
	}
}

var (
	urnAccessors    = []accessor{field("urn"), field("id")}
	urlAccessors    = []accessor{field("url"), field("linkedinUrl")}
	textAccessors   = []accessor{field("text"), field("content"), field("description")}
	nameAccessors   = []accessor{field("authorFullName"), field("authorName"), nested("author", "name")}
	titleAccessors  = []accessor{field("authorTitle"), field("authorHeadline"), nested("author", "info")}
	authorAccessors = []accessor{field("authorProfileUrl"), nested("author", "linkedinUrl")}
	publicIDs       = []accessor{nested("author", "publicIdentifier"), nested("author", "publicId")}
	isoAccessors    = []accessor{field("postedAtISO"), nested("postedAt", "date")}
	tsAccessors     = []accessor{field("postedAtTimestamp"), nested("postedAt", "timestamp")}
	agoAccessors    = []accessor{field("timeSincePosted"), nested("postedAt", "postedAgoText")}
	likeAccessors   = []accessor{field("numLikes"), nested("engagement", "likes")}
	shareAccessors  = []accessor{field("numShares"), nested("engagement", "shares")}
)

// Normalize extracts the canonical fields from one raw provider item,
// tolerating every historical field layout. It fails only when no identity
// key can be derived.
func Normalize(raw linkpulse.RawPost) (Fields, error) {
	urn := firstString(raw, urnAccessors)
	if urn == "" {
		return Fields{}, ErrUnidentifiable
	}

	f := Fields{
		URN:              urn,
		PostURL:          firstString(raw, urlAccessors),
		Text:             firstString(raw, textAccessors),
		AuthorName:       firstString(raw, nameAccessors),
		AuthorTitle:      firstString(raw, titleAccessors),
		AuthorProfileURL: firstString(raw, authorAccessors),
		AuthorPublicID:   firstString(raw, publicIDs),
		TimeSincePosted:  firstString(raw, agoAccessors),
		NumLikes:         firstCount(raw, likeAccessors),
		NumShares:        firstCount(raw, shareAccessors),
	}

	// Only a public-identifier fragment available: synthesize the profile URL.
	if f.AuthorProfileURL == "" && f.AuthorPublicID != "" {
		f.AuthorProfileURL = "https://www.linkedin.com/in/" + f.AuthorPublicID
	}

	f.Image = firstImage(raw)
	f.Images = imageList(raw)
	f.NumComments = commentCount(raw)

	if iso := firstString(raw, isoAccessors); iso != "" {
		f.PostedAtISO = &iso
	}
	if ts, ok := firstNumber(raw, tsAccessors); ok {
		n := int64(ts)
		f.PostedAtTS = &n
	}

	return f, nil
}

// The comment count has one extra fallback: an explicit comments list, whose
// length stands in when no count field is present.
func commentCount(raw linkpulse.RawPost) int64 {
	if n, ok := firstNumber(raw, []accessor{field("numComments")}); ok {
		return int64(n)
	}
	if comments, ok := raw["comments"].([]any); ok {
		return int64(len(comments))
	}
	if n, ok := firstNumber(raw, []accessor{nested("engagement", "comments")}); ok {
		return int64(n)
	}

	return 0
}

// firstImage resolves the primary image: a direct image field, the first
// element of an image-array field, or the nested document cover page.
func firstImage(raw linkpulse.RawPost) string {
	if v, ok := raw["image"]; ok {
		if u := imageURL(v); u != "" {
			return u
		}
	}
	if imgs, ok := raw["postImages"].([]any); ok && len(imgs) > 0 {
		if u := imageURL(imgs[0]); u != "" {
			return u
		}
	}
	if v, ok := nested("document", "coverPages")(raw); ok {
		if pages, ok := v.([]any); ok && len(pages) > 0 {
			if urls, ok := nested("imageUrls")(toRaw(pages[0])); ok {
				if list, ok := urls.([]any); ok && len(list) > 0 {
					if u, ok := list[0].(string); ok {
						return u
					}
				}
			}
		}
	}

	return ""
}

// imageList flattens a possibly-mixed array of string/object image
// references into plain URL strings, preserving order and dropping anything
// that doesn't resolve.
func imageList(raw linkpulse.RawPost) []string {
	var imgs []any
	for _, acc := range []accessor{field("images"), field("postImages")} {
		v, ok := acc(raw)
		if !ok {
			continue
		}
		// A present-but-null (or otherwise non-array) field falls through
		// to the next synonym.
		if list, ok := v.([]any); ok {
			imgs = list
			break
		}
	}

	var out []string
	for _, img := range imgs {
		if u := imageURL(img); u != "" {
			out = append(out, u)
		}
	}

	return out
}

// imageURL resolves one image reference, which may be a plain URL string or
// an object carrying a url attribute.
func imageURL(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case map[string]any:
		if u, ok := img["url"].(string); ok {
			return u
		}
	}

	return ""
}

func toRaw(v any) linkpulse.RawPost {
	if m, ok := v.(map[string]any); ok {
		return linkpulse.RawPost(m)
	}

	return linkpulse.RawPost{}
}

func firstString(raw linkpulse.RawPost, accs []accessor) string {
	for _, acc := range accs {
		v, ok := acc(raw)
		if !ok {
			continue
		}
		if s := asString(v); s != "" {
			return s
		}
	}

	return ""
}

func firstNumber(raw linkpulse.RawPost, accs []accessor) (float64, bool) {
	for _, acc := range accs {
		v, ok := acc(raw)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}

	return 0, false
}

func firstCount(raw linkpulse.RawPost, accs []accessor) int64 {
	n, _ := firstNumber(raw, accs)
	return int64(n)
}

// asString stringifies scalar identity values: providers have shipped urns
// as both strings and numbers.
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	}

	return ""
}
