package services

import (
	"net/url"
	"path"
	"strings"
)

// ArtifactStore resolves uploaded builds to their public CDN location.
type ArtifactStore struct {
	baseURL string
}

func NewArtifactStore(cdnBaseURL string) *ArtifactStore {
	return &ArtifactStore{baseURL: strings.TrimRight(cdnBaseURL, "/")}
}

// EntryURL is <cdn>/games/<gameID>/<version>/<entryFile>.
func (a *ArtifactStore) EntryURL(gameID, version, entryFile string) string {
	if entryFile == "" {
		entryFile = "index.html"
	}
	p := path.Join("games", url.PathEscape(gameID), url.PathEscape(version), strings.TrimLeft(entryFile, "/"))
	return a.baseURL + "/" + p
}
