package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Data size and time constants.
const (
	kilobyte        = 1024
	megabyte        = kilobyte * 1024
	gigabyte        = megabyte * 1024
	secondsInMinute = 60
	secondsInHour   = 3600
)

// Formatting constants.
const (
	formatSeconds = "%.1fs"
	formatMinutes = "%dm %.1fs"
	formatHours   = "%dh %dm"
	formatGB      = "%.1f GB"
	formatMB      = "%.1f MB"
	formatKB      = "%.1f KB"
	formatBytes   = "%d B"
)

// File extension constants.
const (
	ExtWAV  = ".wav"
	extAAC  = ".aac"
	extFLAC = ".flac"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
)

// IsWAVFile reports whether filename has a .wav extension, ignoring case.
func IsWAVFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ExtWAV)
}

// IsValidAudioFile checks if a filename has a common audio file extension.
func IsValidAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ExtWAV, extMP3, extFLAC, extOGG, extM4A, extAAC:
		return true
	default:
		return false
	}
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"/", "_",
		"\\", "_",
		"|", "_",
		"?", "_",
		"*", "_",
	)

	return replacer.Replace(filename)
}

// FormatDuration formats seconds as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a byte count as "1.2 GB", "500.5 MB" and so on.
func FormatFileSize(size int64) string {
	switch {
	case size >= gigabyte:
		return fmt.Sprintf(formatGB, float64(size)/gigabyte)
	case size >= megabyte:
		return fmt.Sprintf(formatMB, float64(size)/megabyte)
	case size >= kilobyte:
		return fmt.Sprintf(formatKB, float64(size)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, size)
	}
}
