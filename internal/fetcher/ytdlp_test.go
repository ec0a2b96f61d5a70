package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ykarpov/dlqueue/internal/domain"
)

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		name string
		opts domain.Options
		want string
	}{
		{"default", domain.Options{}, "best[height<=1080]/best"},
		{"best", domain.Options{Quality: "best"}, "best[height<=1080]/best"},
		{"1080p", domain.Options{Quality: "1080p"}, "best[height<=1080]/best"},
		{"720p", domain.Options{Quality: "720p"}, "best[height<=720]/best"},
		{"480p", domain.Options{Quality: "480p"}, "best[height<=480]/best"},
		{"worst", domain.Options{Quality: "worst"}, "worst"},
		{"audio only wins over quality", domain.Options{AudioOnly: true, Quality: "720p"}, "bestaudio/best"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSelector(tt.opts))
		})
	}
}
