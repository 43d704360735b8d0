package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortDirection(t *testing.T) {
	tests := map[string]string{
		"":                               "DESC",
		"asc":                            "ASC",
		"  ASC ":                         "ASC",
		"desc":                           "DESC",
		"sideways":                       "DESC",
		"ASC; DROP TABLE crm_actions;--": "DESC",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, sortDirection(input))
		})
	}
}

func TestCampaignSort_Clause(t *testing.T) {
	tests := []struct {
		name     string
		orderBy  string
		orderDir string
		want     string
	}{
		{"defaults", "", "", "created_at DESC"},
		{"allowed column ascending", "budget", "asc", "budget ASC"},
		{"trims column", "  name ", "desc", "name DESC"},
		{"unknown column", "secret", "asc", "created_at ASC"},
		{"case sensitive", "NAME", "", "created_at DESC"},
		{"injection", "name; DELETE FROM ad_campaigns", "", "created_at DESC"},
		{"quoted", "name'--", "asc", "created_at ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, campaignSort.Clause(tt.orderBy, tt.orderDir))
		})
	}
}

func TestNewSortSpec_DefaultAlwaysAllowed(t *testing.T) {
	spec := newSortSpec("due_date", "priority")

	assert.Equal(t, "due_date", spec.Field("due_date"))
	assert.Equal(t, "priority", spec.Field("priority"))
	assert.Equal(t, "due_date", spec.Field("title"))
}
