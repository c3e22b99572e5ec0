package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

const bbox = "69.100000,41.200000,69.400000,41.400000"

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Query("rg-tashkent", bbox, []string{"GREENHOUSE", "FIELD"})
	k2 := Query("rg-tashkent", bbox, []string{"GREENHOUSE", "FIELD"})
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestTypeOrder_DoesNotSplitCache(t *testing.T) {
	k1 := Query("rg-tashkent", bbox, []string{"FIELD", "GREENHOUSE"})
	k2 := Query("rg-tashkent", bbox, []string{"GREENHOUSE", "FIELD"})
	if k1 != k2 {
		t.Fatalf("type order split the cache:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestDifference_OrgAndBBoxMatter(t *testing.T) {
	k1 := Query("rg-tashkent", bbox, nil)
	k2 := Query("rg-samarkand", bbox, nil)
	if k1 == k2 {
		t.Fatalf("different orgs must produce different keys")
	}
	k3 := Query("rg-tashkent", "66.900000,39.600000,67.000000,39.700000", nil)
	if k1 == k3 {
		t.Fatalf("different bboxes must produce different keys")
	}
}

func TestUnicodeSafety_NoPanicAndHashSuffixPresent(t *testing.T) {
	k := Query("fermer xo'jaligi 雪", bbox, []string{"ORCHARD"})

	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}

	m := regexp.MustCompile(`:f=([0-9a-f]{16})$`).FindStringSubmatch(k)
	if len(m) != 2 {
		t.Fatalf("missing or invalid :f=<hex64> suffix in key: %s", k)
	}

	if !strings.HasPrefix(k, "fac:") {
		t.Fatalf("missing fac: prefix in key: %s", k)
	}
}

func TestSanitize_CollapsesRuns(t *testing.T) {
	k1 := Query("org   with\t\tspace", bbox, nil)
	if strings.Contains(k1, "__") || strings.Contains(k1, "--") {
		t.Fatalf("sanitizer must collapse runs: %s", k1)
	}
}
