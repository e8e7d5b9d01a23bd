package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyReference  = "reference"
	KeyRevision   = "revision"
	KeyGenerator  = "generator"
	KeyWordWidth  = "word_width"
	KeyTool       = "tool"
	KeyExitCode   = "exit_code"
	KeyCacheKey   = "cache_key"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Reference(r string) slog.Attr    { return slog.String(KeyReference, r) }
func Revision(r string) slog.Attr     { return slog.String(KeyRevision, r) }
func Generator(g string) slog.Attr    { return slog.String(KeyGenerator, g) }
func WordWidth(w int) slog.Attr       { return slog.Int(KeyWordWidth, w) }
func Tool(t string) slog.Attr         { return slog.String(KeyTool, t) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func CacheKey(k string) slog.Attr     { return slog.String(KeyCacheKey, k) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
