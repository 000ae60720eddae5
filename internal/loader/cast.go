package loader

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/careworks-labs/nhstage/internal/registry"
)

// Date layouts observed in CMS extracts. Four-digit years only; the public
// files never use two-digit years.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"20060102",
}

var nonAlnumRe = regexp.MustCompile(`[^0-9a-zA-Z]+`)
var underscoreRunRe = regexp.MustCompile(`_+`)

// NormalizeName normalizes a CSV header to the snake_case form used for
// declared column names: lowercase, non-alphanumerics collapsed to a single
// underscore, leading/trailing underscores stripped.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlnumRe.ReplaceAllString(s, "_")
	s = underscoreRunRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Cast converts a raw CSV value to the column's declared primitive type.
// An empty value maps to NULL (nil) only when the column is nullable;
// otherwise, and on any parse failure, an error describes the reason.
func Cast(raw string, col registry.Column) (any, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		if col.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("empty value for non-nullable column")
	}

	switch col.Type {
	case registry.TypeString:
		return v, nil

	case registry.TypeDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as date", v)

	case registry.TypeNumeric:
		f, err := strconv.ParseFloat(cleanNumeric(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as numeric", v)
		}
		return f, nil

	case registry.TypeInt:
		s := cleanNumeric(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		// Extracts occasionally write integral values as "30.0".
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("cannot parse %q as int", v)
		}
		return int64(f), nil

	default:
		return nil, fmt.Errorf("unrecognized column type %q", col.Type)
	}
}

// cleanNumeric strips currency formatting ($ and thousands separators)
// before numeric parsing.
func cleanNumeric(v string) string {
	v = strings.TrimPrefix(v, "$")
	return strings.ReplaceAll(v, ",", "")
}
