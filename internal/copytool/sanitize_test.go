package copytool

import "testing"

func TestSanitize_Table(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"empty args", nil, false},
		{"whitelisted exact and prefixed", []string{"/E", "/R:3", "/W:5", "/MT:8"}, false},
		{"rejects mirror/purge switch", []string{"/MIR"}, true},
		{"rejects delete-extra switch", []string{"/PURGE"}, true},
		{"rejects unknown arbitrary flag", []string{"/FOO"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Sanitize(tt.args)
			if tt.wantErr && err == nil {
				t.Fatal("expected rejection, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		})
	}
}
