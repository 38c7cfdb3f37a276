package device

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/adika-dev/presensi-core/internal/models"
)

// LoadFleet reads the device fleet definition from a YAML file:
//
//	devices:
//	  - name: "104"
//	    family: PULL_NATIVE
//	    endpoint: 10.0.0.14:4370
//	    punch_map:
//	      codes: {"0": IN, "1": OUT}
//	      fallback: RAW_CODE
func LoadFleet(path string) ([]models.DeviceConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read devices config %s: %w", path, err)
	}

	var fleet struct {
		Devices []models.DeviceConfig `mapstructure:"devices"`
	}
	if err := v.Unmarshal(&fleet); err != nil {
		return nil, fmt.Errorf("decode devices config %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(fleet.Devices))
	for _, d := range fleet.Devices {
		if d.Name == "" {
			return nil, fmt.Errorf("devices config %s: device with empty name", path)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("devices config %s: duplicate device %q", path, d.Name)
		}
		seen[d.Name] = struct{}{}
		if !d.Family.Valid() {
			return nil, fmt.Errorf("devices config %s: device %q has unsupported family %q", path, d.Name, d.Family)
		}
		if d.Endpoint == "" {
			return nil, fmt.Errorf("devices config %s: device %q has no endpoint", path, d.Name)
		}
	}
	return fleet.Devices, nil
}
