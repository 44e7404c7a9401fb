package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Number is a numeric JSON field kept as its literal text. Exchanges disagree on whether
// numbers are quoted, so both 12.5 and "12.5" decode to "12.5"; null decodes to "".
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*n = ""
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(str))
	case strings.HasPrefix(s, "{"), strings.HasPrefix(s, "["), s == "true", s == "false":
		return fmt.Errorf("expected number, got %s", s)
	default:
		*n = Number(s)
	}
	return nil
}

func (n Number) String() string { return string(n) }

func (n Number) Empty() bool { return n == "" }

// ParseUnix reads an integer epoch timestamp in seconds, milliseconds or microseconds.
func ParseUnix(s string) (time.Time, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	switch {
	case v >= 1e14:
		return time.UnixMicro(v).UTC(), nil
	case v >= 1e11:
		return time.UnixMilli(v).UTC(), nil
	default:
		return time.Unix(v, 0).UTC(), nil
	}
}
