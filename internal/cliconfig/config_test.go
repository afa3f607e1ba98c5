package cliconfig

import "testing"

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid minimal config",
			cfg:  Config{Name: "run", InputDir: "/raw", WorkDir: "/work"},
		},
		{
			name:    "missing name",
			cfg:     Config{InputDir: "/raw", WorkDir: "/work"},
			wantErr: true,
		},
		{
			name:    "missing input dir",
			cfg:     Config{Name: "run", WorkDir: "/work"},
			wantErr: true,
		},
		{
			name:    "missing work dir",
			cfg:     Config{Name: "run", InputDir: "/raw"},
			wantErr: true,
		},
		{
			name:    "negative workers",
			cfg:     Config{Name: "run", InputDir: "/raw", WorkDir: "/work", Workers: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
