package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, sha, bt string) { Version, GitSHA, BuildTime = v, sha, bt }(Version, GitSHA, BuildTime)

	if got, want := String(), "irocs dev (commit unknown, built unknown)"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	Version = "v1.2.3"
	GitSHA = "0123456789abcdef0123"
	BuildTime = "2026-01-02T03:04:05Z"
	if got, want := String(), "irocs v1.2.3 (commit 0123456789ab, built 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
