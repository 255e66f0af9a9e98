package storage

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var archiveIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const (
	resultRoot      = "results"
	archiveExt      = ".parquet"
	userSegment     = "user="
	dateSegment     = "date="
	archiveDateForm = time.DateOnly
)

// BuildResultArchivePath lays archived results out per user and UTC day:
// results/user=<id>/date=YYYY-MM-DD/<archiveID>.parquet
func BuildResultArchivePath(userID int64, createdAt time.Time, archiveID string) (string, error) {
	if userID < 0 {
		return "", fmt.Errorf("invalid user id: %d", userID)
	}
	if !archiveIDPattern.MatchString(archiveID) {
		return "", fmt.Errorf("invalid archive id: %q", archiveID)
	}
	return path.Join(
		resultRoot,
		userSegment+strconv.FormatInt(userID, 10),
		dateSegment+createdAt.UTC().Format(archiveDateForm),
		archiveID+archiveExt,
	), nil
}

// ResultArchiveOwner returns the user id encoded in a key built by
// BuildResultArchivePath.
func ResultArchiveOwner(key string) (int64, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != resultRoot || !strings.HasSuffix(parts[3], archiveExt) {
		return 0, fmt.Errorf("not a result archive key: %q", key)
	}
	rawUser, ok := strings.CutPrefix(parts[1], userSegment)
	if !ok {
		return 0, fmt.Errorf("missing user segment in %q", key)
	}
	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil || userID < 0 {
		return 0, fmt.Errorf("invalid user segment in %q", key)
	}
	rawDate, ok := strings.CutPrefix(parts[2], dateSegment)
	if !ok {
		return 0, fmt.Errorf("missing date segment in %q", key)
	}
	if _, err := time.Parse(archiveDateForm, rawDate); err != nil {
		return 0, fmt.Errorf("invalid date segment in %q", key)
	}
	return userID, nil
}
