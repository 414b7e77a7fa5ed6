package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSeatLabel(t *testing.T) {
	tests := []struct {
		name  string
		taken []string
		want  string
	}{
		{"empty schedule", nil, "S01"},
		{"sequential", []string{"S01", "S02"}, "S03"},
		{"reuses released seat", []string{"S02", "S03"}, "S01"},
		{"fills gap", []string{"S01", "S03", "S04"}, "S02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextSeatLabel(tt.taken))
		})
	}
}
