package status

import (
	"strings"
	"testing"
)

func TestView(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		want  []string
	}{
		{
			name:  "defaults",
			model: New(),
			want:  []string{"API checking", "no tenant", "disconnected", "feed off"},
		},
		{
			name: "connected tenant",
			model: Model{
				API:        APIOnline,
				Tenant:     "Loja",
				Connection: "connected",
				SessionID:  "session-abcdefghijkl",
				Feed:       FeedLive,
				Width:      80,
			},
			want: []string{"API online", "Loja", "connected", "session-abcd", "feed live"},
		},
		{
			name:  "offline reconnecting",
			model: Model{API: APIOffline, Connection: "connecting", Feed: FeedConnecting},
			want:  []string{"API offline", "connecting", "feed reconnecting"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.model.View()
			for _, w := range tt.want {
				if !strings.Contains(v, w) {
					t.Errorf("View() missing %q in:\n%s", w, v)
				}
			}
		})
	}
}
