package raw

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// RootPrefix is the top-level prefix of harvested files.
const RootPrefix = "raw"

// DayPrefix is the prefix holding all files of one format and day.
func DayPrefix(format Format, day string) string {
	return path.Join(RootPrefix, string(format), day) + "/"
}

// Key names the seq-th file of one format and day, e.g. raw/arXiv/2024-01-02/0001.json.
func Key(format Format, day string, seq int) string {
	return DayPrefix(format, day) + fmt.Sprintf("%04d.json", seq)
}

// ParseKey splits a key produced by Key.
func ParseKey(key string) (format Format, day string, seq int, err error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != RootPrefix || !strings.HasSuffix(parts[3], ".json") {
		return "", "", 0, fmt.Errorf("not a raw key: %q", key)
	}
	format, err = ParseFormat(parts[1])
	if err != nil {
		return "", "", 0, err
	}
	seq, err = strconv.Atoi(strings.TrimSuffix(parts[3], ".json"))
	if err != nil {
		return "", "", 0, fmt.Errorf("raw key %q: %w", key, err)
	}
	return format, parts[2], seq, nil
}
