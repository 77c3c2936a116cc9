package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchResult(t *testing.T) {
	tests := []struct {
		name    string
		deleted []string
		failed  []string
		want    string
	}{
		{"all deleted", []string{"a", "b"}, nil, BatchSuccess},
		{"some failed", []string{"a"}, []string{"b"}, BatchPartial},
		{"all failed", nil, []string{"a"}, BatchFailure},
		{"nothing requested", nil, nil, BatchFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewBatchResult(tt.deleted, tt.failed)
			assert.Equal(t, tt.want, r.Status)
			assert.NotNil(t, r.Deleted)
			assert.NotNil(t, r.Failed)
		})
	}
}
