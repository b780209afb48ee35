package scope

// DefaultSkipExtensions are static assets that never yield a page inventory.
var DefaultSkipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".css", ".js",
}

// SessionExcludePatterns match links that end a session or change account
// state. They are opt-in through the exclude_session_links setting.
var SessionExcludePatterns = []string{
	`[?&]logout`,
	`[?&]signout`,
	`/logout`,
	`/signout`,
	`/sign-out`,
	`/delete-account`,
	`/unsubscribe`,
}

// MergeExtensions returns the defaults followed by any extra extensions not
// already present.
func MergeExtensions(extra []string) []string {
	out := append([]string(nil), DefaultSkipExtensions...)
	seen := make(map[string]struct{}, len(out))
	for _, ext := range out {
		seen[ext] = struct{}{}
	}
	for _, ext := range extra {
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
