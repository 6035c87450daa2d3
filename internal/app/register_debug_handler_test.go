package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleFieldDataNoSensor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/field", nil)
	rec := httptest.NewRecorder()

	HandleFieldData(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500 with no sensor bound, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected permissive CORS header, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Errorf("Expected an error payload, got %q", rec.Body.String())
	}
}

func TestIsRegisterWritable(t *testing.T) {
	cases := []struct {
		name   string
		addr   byte
		ranges string
		want   bool
	}{
		{"empty allows nothing", 0x20, "", false},
		{"single address match", 0x30, "0x30", true},
		{"single address miss", 0x31, "0x30", false},
		{"range low edge", 0x20, "0x20-0x23", true},
		{"range high edge", 0x23, "0x20-0x23", true},
		{"above range", 0x24, "0x20-0x23", false},
		{"below range", 0x1F, "0x20-0x23", false},
		{"second part matches", 0x32, "0x20-0x23,0x30-0x33", true},
		{"whitespace tolerated", 0x21, " 0x20 - 0x23 , 0x30 ", true},
		{"malformed part skipped", 0x21, "zz,0x20-0x23", true},
		{"malformed only", 0x21, "zz", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRegisterWritable(tc.addr, tc.ranges); got != tc.want {
				t.Errorf("isRegisterWritable(0x%02X, %q) = %v, want %v", tc.addr, tc.ranges, got, tc.want)
			}
		})
	}
}
