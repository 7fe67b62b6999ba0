package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		wantVer   string
		wantDate  string
		wantPrint string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, "pestalert unknown (built unknown)"},
		{"empty values", NewContext("", ""), UnknownValue, UnknownValue, "pestalert unknown (built unknown)"},
		{"populated", NewContext("v1.4.0-rc1", "2026-03-01"), "v1.4.0-rc1", "2026-03-01", "pestalert v1.4.0-rc1 (built 2026-03-01)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantVer, tt.ctx.GetVersion())
			assert.Equal(t, tt.wantDate, tt.ctx.GetBuildDate())
			assert.Equal(t, tt.wantPrint, tt.ctx.String())
		})
	}
}
