package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want Config
	}{
		{"defaults", nil, Config{Timeout: 5 * time.Second, ConfidenceFloor: 0.7}},
		{"timeout", []Option{WithTimeout(time.Second)}, Config{Timeout: time.Second, ConfidenceFloor: 0.7}},
		{"zero timeout keeps the default", []Option{WithTimeout(0)}, Config{Timeout: 5 * time.Second, ConfidenceFloor: 0.7}},
		{"floor", []Option{WithConfidenceFloor(0.2)}, Config{Timeout: 5 * time.Second, ConfidenceFloor: 0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewConfig(5*time.Second, 0.7, tt.opts...))
		})
	}
}
