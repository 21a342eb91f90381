package session

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	regexp "github.com/wasilibs/go-re2"
)

var artifactPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}_[0-9a-f]{32}\.txt$`)

// ArtifactName is the base name of a result file. Values come from
// NewArtifactName or ParseArtifactName and never contain a path separator.
type ArtifactName string

func (n ArtifactName) String() string { return string(n) }

// NewArtifactName builds a fresh artifact name for target with a random suffix.
func NewArtifactName(target Target) ArtifactName {
	return ArtifactName(fmt.Sprintf("%s_%s.txt", target, NewID()))
}

// ParseArtifactName accepts s only if it matches the artifact naming pattern
// exactly.
func ParseArtifactName(s string) (ArtifactName, error) {
	if !artifactPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, s)
	}
	return ArtifactName(s), nil
}

// NewID returns a random 32 character lowercase hex token.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ArtifactInfo describes a stored artifact.
type ArtifactInfo struct {
	Name    ArtifactName
	ModTime time.Time
	Size    int64
}
