package model

import "strings"

// StagedArtifact is the set of files under a single-use stage prefix.
type StagedArtifact struct {
	Prefix string
	Files  []string
}

// Path returns the stage location of the prefix, with a trailing slash.
func (a StagedArtifact) Path() string {
	return "@~/" + strings.TrimSuffix(a.Prefix, "/") + "/"
}

func (a StagedArtifact) Empty() bool {
	return len(a.Files) == 0
}
