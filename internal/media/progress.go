package media

import (
	"bytes"
	"regexp"
	"strconv"
)

// timeMarker matches the elapsed-time field ffmpeg writes on its stats line,
// e.g. "frame=10 fps=0.0 q=-1.0 size=256kB time=00:01:05.50 bitrate=...".
var timeMarker = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// ParseProgressTime extracts the elapsed time in seconds from a diagnostic
// line. Lines without a time marker return false.
func ParseProgressTime(line string) (float64, bool) {
	m := timeMarker.FindStringSubmatch(line)
	if len(m) != 4 {
		return 0, false
	}
	h, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	min, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, false
	}
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return h*3600 + min*60 + sec, true
}

// Fraction converts elapsed seconds into a completion fraction in [0,1].
// An unknown or non-positive total yields 0.
func Fraction(elapsed, total float64) float64 {
	if total <= 0 || elapsed <= 0 {
		return 0
	}
	f := elapsed / total
	if f > 1 {
		return 1
	}
	return f
}

// scanLines is a bufio.SplitFunc that ends a line at '\n' or '\r'. ffmpeg
// redraws its stats line with carriage returns, so a newline-only splitter
// would see one giant line at exit.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
