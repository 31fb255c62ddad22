package version

import (
	"strings"
	"testing"
)

func TestVersionCarriesFlag(t *testing.T) {
	if Flag == "" {
		t.Skip("no development flag set")
	}

	if !strings.HasSuffix(Version, "-"+Flag) && !strings.Contains(Version, "-"+Flag+"-") {
		t.Fatalf("Version %s should carry the flag %s", Version, Flag)
	}
}
