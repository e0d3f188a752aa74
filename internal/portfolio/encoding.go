package portfolio

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrEncoding is returned when no candidate encoding decodes the data.
var ErrEncoding = errors.New("unable to decode portfolio csv with any supported encoding")

type candidate struct {
	name string
	enc  encoding.Encoding
}

// Decode converts data to UTF-8. The charset reported by detection is tried
// first, then UTF-8, ISO-8859-1 and Windows-1252. It returns the decoded text
// and the name of the charset that worked.
func Decode(data []byte) (string, string, error) {
	data = stripBOM(data)

	for _, c := range candidates(data) {
		if c.enc == nil {
			if utf8.Valid(data) {
				return string(data), c.name, nil
			}
			continue
		}

		out, err := c.enc.NewDecoder().Bytes(data)
		if err != nil || !utf8.Valid(out) || strings.ContainsRune(string(out), utf8.RuneError) {
			continue
		}
		return string(stripBOM(out)), c.name, nil
	}

	return "", "", ErrEncoding
}

func candidates(data []byte) []candidate {
	list := make([]candidate, 0, 4)

	if detected := detect(data); detected != nil {
		list = append(list, *detected)
	}

	return append(list,
		candidate{name: "UTF-8"},
		candidate{name: "ISO-8859-1", enc: charmap.ISO8859_1},
		candidate{name: "windows-1252", enc: charmap.Windows1252},
	)
}

func detect(data []byte) *candidate {
	if len(data) == 0 {
		return nil
	}

	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil {
		return nil
	}

	switch strings.ToUpper(res.Charset) {
	case "UTF-8", "ASCII", "US-ASCII":
		return &candidate{name: "UTF-8"}
	case "UTF-16LE":
		return &candidate{name: res.Charset, enc: unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)}
	case "UTF-16BE":
		return &candidate{name: res.Charset, enc: unicode.UTF16(unicode.BigEndian, unicode.UseBOM)}
	}

	enc, err := htmlindex.Get(res.Charset)
	if err != nil {
		return nil
	}

	return &candidate{name: res.Charset, enc: enc}
}
