package config

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	if info.GoVersion != runtime.Version() || info.OS != runtime.GOOS || info.Arch != runtime.GOARCH {
		t.Errorf("runtime fields not set: %+v", info)
	}
	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("empty build fields: %+v", info)
	}
	if again := GetBuildInfo(); again != info {
		t.Errorf("GetBuildInfo() not stable: %+v vs %+v", again, info)
	}
}

func TestVersionString(t *testing.T) {
	info := GetBuildInfo()
	got := VersionString("pawctl")
	if !strings.HasPrefix(got, "pawctl "+info.Version+" (") {
		t.Errorf("VersionString() = %q, want prefix %q", got, "pawctl "+info.Version)
	}
	if !strings.Contains(got, info.Commit) {
		t.Errorf("VersionString() = %q, missing commit", got)
	}
}

func TestUserAgent(t *testing.T) {
	if got, want := UserAgent(), "pawwatch/"+GetBuildInfo().Version; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}

func TestShortRevision(t *testing.T) {
	tests := map[string]string{
		"abc":                       "abc",
		"0123456789abcdef0123456789": "0123456789ab",
	}
	for in, want := range tests {
		if got := shortRevision(in); got != want {
			t.Errorf("shortRevision(%q) = %q, want %q", in, got, want)
		}
	}
}
