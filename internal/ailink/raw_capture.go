package ailink

import "strings"

func truncateBytes(input []byte, max int) []byte {
	if max <= 0 {
		return nil
	}
	if len(input) <= max {
		return input
	}
	out := make([]byte, 0, max)
	out = append(out, input[:max]...)
	return out
}

func rawLimit(cfg DebugConfig) int {
	if !cfg.CaptureRawEnabled {
		return 0
	}
	if cfg.CaptureRawMaxBytes <= 0 {
		return defaultCaptureRawMaxBytes
	}
	return cfg.CaptureRawMaxBytes
}

func safeOneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " "))
}
