package output

import (
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Extension is the Entry project file extension.
const Extension = ".ent"

// Stem returns the NFC-normalized input base name without its extension.
func Stem(input string) string {
	base := filepath.Base(strings.TrimSpace(input))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSpace(norm.NFC.String(stem))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "video"
	}
	return stem
}

// ArchiveName replaces the input's extension with .ent.
func ArchiveName(input string) string {
	return Stem(input) + Extension
}

// SegmentName names segment index (0-based) of total. A single segment keeps
// the plain archive name; split archives are numbered from 1.
func SegmentName(stem string, index, total int) string {
	if total <= 1 {
		return stem + Extension
	}
	return stem + "." + strconv.Itoa(index+1) + Extension
}

// isOutputName reports whether name is stem.ent or stem.<n>.ent.
func isOutputName(stem, name string) bool {
	if name == stem+Extension {
		return true
	}
	rest, ok := strings.CutPrefix(name, stem+".")
	if !ok {
		return false
	}
	digits, ok := strings.CutSuffix(rest, Extension)
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.Atoi(digits)
	return err == nil
}
