package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adika-dev/presensi-core/internal/models"
)

func writeFleet(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadFleet(t *testing.T) {
	path := writeFleet(t, `
devices:
  - name: "104"
    family: PULL_NATIVE
    endpoint: 10.0.0.14:4370
    punch_map:
      codes: {"0": IN, "1": OUT}
  - name: "cloud-1"
    family: PULL_HTTP
    endpoint: https://cloud.example.com/api
    api_key: secret
    cloud_id: C100
    punch_map:
      codes: {"0": IN}
      fallback: OUT
`)

	fleet, err := LoadFleet(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fleet) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(fleet))
	}

	native := fleet[0]
	if native.Name != "104" || native.Family != models.FamilyPullNative {
		t.Fatalf("unexpected device: %+v", native)
	}
	if status, ok := native.PunchMap.Resolve("1"); !ok || status != models.PunchOut {
		t.Fatalf("punch map not decoded: %v %v", status, ok)
	}
	if _, ok := native.PunchMap.Resolve("9"); ok {
		t.Fatal("unmapped code without fallback must not resolve")
	}

	cloud := fleet[1]
	if cloud.APIKey != "secret" || cloud.CloudID != "C100" {
		t.Fatalf("cloud credentials not decoded: %+v", cloud)
	}
	if status, ok := cloud.PunchMap.Resolve("9"); !ok || status != models.PunchOut {
		t.Fatalf("fallback not applied: %v %v", status, ok)
	}
}

func TestLoadFleetRejectsDuplicateNames(t *testing.T) {
	path := writeFleet(t, `
devices:
  - name: "104"
    family: PULL_NATIVE
    endpoint: 10.0.0.14:4370
  - name: "104"
    family: PULL_NATIVE
    endpoint: 10.0.0.15:4370
`)
	if _, err := LoadFleet(path); err == nil {
		t.Fatal("duplicate device names must be rejected")
	}
}

func TestLoadFleetRejectsUnknownFamily(t *testing.T) {
	path := writeFleet(t, `
devices:
  - name: "104"
    family: CARRIER_PIGEON
    endpoint: 10.0.0.14:4370
`)
	if _, err := LoadFleet(path); err == nil {
		t.Fatal("unsupported family must be rejected")
	}
}

func TestLoadFleetRejectsMissingEndpoint(t *testing.T) {
	path := writeFleet(t, `
devices:
  - name: "104"
    family: PULL_NATIVE
`)
	if _, err := LoadFleet(path); err == nil {
		t.Fatal("missing endpoint must be rejected")
	}
}
