package version

import (
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "v1.2.3", "abc1234"
	if got := GetVersion(); got != "v1.2.3 (abc1234)" {
		t.Errorf("GetVersion() = %q", got)
	}

	Commit = ""
	if got := GetVersion(); !strings.HasPrefix(got, "v1.2.3") {
		t.Errorf("GetVersion() = %q, want v1.2.3 prefix", got)
	}
}
