package http

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// errRangeUnsupported marks Range headers we choose not to honor
	// (suffix form, multiple ranges, other units, malformed values).
	// The caller falls back to a full 200 response.
	errRangeUnsupported = errors.New("unsupported range")
	// errRangeUnsatisfiable marks a syntactically valid range that lies
	// entirely outside the object. The caller answers 416.
	errRangeUnsatisfiable = errors.New("unsatisfiable range")
)

// parseSingleByteRange interprets a Range request header against an object of
// the given size. Only the single form "bytes=start-" or "bytes=start-end" is
// honored; end is clamped to the last byte of the object.
func parseSingleByteRange(raw string, size int64) (int64, int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, false, nil
	}

	const prefix = "bytes="
	if !strings.HasPrefix(strings.ToLower(raw), prefix) {
		return 0, 0, false, errRangeUnsupported
	}
	spec := strings.TrimSpace(raw[len(prefix):])
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, false, errRangeUnsupported
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return 0, 0, false, errRangeUnsupported
	}
	startRaw := strings.TrimSpace(spec[:dash])
	endRaw := strings.TrimSpace(spec[dash+1:])

	if startRaw == "" {
		// Suffix form bytes=-N.
		return 0, 0, false, errRangeUnsupported
	}
	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false, errRangeUnsupported
	}

	end := int64(-1)
	if endRaw != "" {
		end, err = strconv.ParseInt(endRaw, 10, 64)
		if err != nil || end < 0 {
			return 0, 0, false, errRangeUnsupported
		}
		if end < start {
			return 0, 0, false, errRangeUnsupported
		}
	}

	if size <= 0 || start >= size {
		return 0, 0, false, errRangeUnsatisfiable
	}
	if end < 0 || end > size-1 {
		end = size - 1
	}
	return start, end, true, nil
}
