package main

import (
	"os"
	"path/filepath"
	"strings"
)

var supportedAudioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".webm": true,
}

// ValidateAudioFile reports whether a candidate audio file is worth
// sending to the speech engine. It fails closed: missing file, empty
// file, or unsupported extension all return false. The check is pure
// filesystem metadata; no codec sniffing.
func ValidateAudioFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() || info.Size() == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	return supportedAudioExtensions[ext]
}
