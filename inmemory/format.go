package inmemory

import (
	"slices"
	"strings"

	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
)

const (
	defaultPreTag     = "<em>"
	defaultPostTag    = "</em>"
	defaultCropLength = 10
	defaultCropMarker = "…"
)

// format builds the _formatted copy of a hit, or returns nil when the request asks
// for neither highlighting nor cropping.
func format(doc *document.Document, req *searchodm.SearchRequest) *document.Document {
	if len(req.AttributesToHighlight) == 0 && len(req.AttributesToCrop) == 0 {
		return nil
	}
	var terms []string
	if req.Q != nil {
		terms = strings.Fields(strings.ToLower(*req.Q))
	}
	pre, post := req.HighlightPreTag, req.HighlightPostTag
	if pre == "" && post == "" {
		pre, post = defaultPreTag, defaultPostTag
	}
	cropLength := req.CropLength
	if cropLength <= 0 {
		cropLength = defaultCropLength
	}
	marker := req.CropMarker
	if marker == "" {
		marker = defaultCropMarker
	}

	out := project(doc, req.AttributesToRetrieve)
	updates := make(map[string]string)
	out.Range(func(key string, value any) bool {
		s, ok := value.(string)
		if !ok {
			return true
		}
		if selected(req.AttributesToCrop, key) {
			s = crop(s, terms, cropLength, marker)
		}
		if selected(req.AttributesToHighlight, key) {
			s = highlight(s, terms, pre, post)
		}
		updates[key] = s
		return true
	})
	for key, s := range updates {
		_ = out.Set(key, s)
	}
	return out
}

func selected(attrs []string, key string) bool {
	return slices.Contains(attrs, "*") || slices.Contains(attrs, key)
}

// highlight wraps every case-insensitive occurrence of a term.
func highlight(s string, terms []string, pre, post string) string {
	lower := strings.ToLower(s)
	if len(terms) == 0 || len(lower) != len(s) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		n := 0
		for _, term := range terms {
			if strings.HasPrefix(lower[i:], term) && len(term) > n {
				n = len(term)
			}
		}
		if n == 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteString(pre)
		b.WriteString(s[i : i+n])
		b.WriteString(post)
		i += n
	}
	return b.String()
}

// crop keeps length words starting at the first word that contains a term.
func crop(s string, terms []string, length int, marker string) string {
	words := strings.Fields(s)
	if len(words) <= length {
		return s
	}
	start := 0
	for i, w := range words {
		lw := strings.ToLower(w)
		if slices.ContainsFunc(terms, func(t string) bool { return strings.Contains(lw, t) }) {
			start = i
			break
		}
	}
	start = min(start, len(words)-length)
	end := start + length

	out := strings.Join(words[start:end], " ")
	if start > 0 {
		out = marker + out
	}
	if end < len(words) {
		out += marker
	}
	return out
}
