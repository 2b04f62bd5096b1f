package archive

import (
	"fmt"
	"strings"
)

// Kind names the asset directory inside the archive.
type Kind string

const (
	KindImage Kind = "image"
	KindSound Kind = "sound"
)

// ManifestPath is where the project manifest lives in every segment.
const ManifestPath = "temp/project.json"

// AssetPath returns temp/<hash[0:2]>/<hash[2:4]>/<kind>/<hash>.<ext>.
func AssetPath(hash string, kind Kind, ext string) (string, error) {
	if len(hash) < 4 {
		return "", fmt.Errorf("asset hash %q too short", hash)
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "", fmt.Errorf("asset %s: empty extension", hash)
	}
	return fmt.Sprintf("temp/%s/%s/%s/%s.%s", hash[0:2], hash[2:4], kind, hash, ext), nil
}
