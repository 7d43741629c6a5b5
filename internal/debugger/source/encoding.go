package source

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

var (
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
	codingCookie = regexp.MustCompile(`^[ \t\f]*(?:--|#).*?coding[:=][ \t]*([-\w.]+)`)
)

// encodingAliases maps common cookie spellings to WHATWG labels.
var encodingAliases = map[string]string{
	"latin-1":     "latin1",
	"iso-latin-1": "latin1",
	"latin_1":     "latin1",
	"iso8859_15":  "iso-8859-15",
	"cp-1252":     "cp1252",
	"shift-jis":   "shift_jis",
	"euc_jp":      "euc-jp",
}

// detectEncoding looks for a coding cookie such as "-- -*- coding: latin-1 -*-"
// in the first two lines of data. It returns the declared encoding name, or ""
// when there is none, and data with any UTF-8 byte order mark removed.
func detectEncoding(data []byte) (string, []byte) {
	if bytes.HasPrefix(data, utf8BOM) {
		return "utf-8", data[len(utf8BOM):]
	}

	rest := data
	for i := 0; i < 2 && len(rest) > 0; i++ {
		line := rest
		if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
			line, rest = rest[:nl], rest[nl+1:]
		} else {
			rest = nil
		}
		if m := codingCookie.FindSubmatch(line); m != nil {
			return strings.ToLower(string(m[1])), data
		}
	}
	return "", data
}

// decodeSource converts raw file contents into UTF-8 text.
func decodeSource(data []byte) (string, error) {
	name, body := detectEncoding(data)

	switch name {
	case "", "utf-8", "utf8", "utf_8":
		if !utf8.Valid(body) {
			return "", fmt.Errorf("source is not valid UTF-8 and declares no encoding")
		}
		return string(body), nil
	}

	if alias, ok := encodingAliases[name]; ok {
		name = alias
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", fmt.Errorf("unknown source encoding %q: %w", name, err)
	}
	text, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s source: %w", name, err)
	}
	return string(text), nil
}

// splitLines splits text into lines without their terminators.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
