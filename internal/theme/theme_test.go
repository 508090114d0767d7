package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/horken7/your-mail-buddy/internal/model"
)

func TestImportanceBadge(t *testing.T) {
	tests := []struct {
		importance model.Importance
		want       string
	}{
		{5, "🔥"},
		{4, "🔴"},
		{3, "🟠"},
		{2, "🟡"},
		{1, "🟢"},
		{model.ImportanceFailed, "❌"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ImportanceBadge(tt.importance), "importance %d", tt.importance)
	}
}
