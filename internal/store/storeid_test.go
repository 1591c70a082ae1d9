package store_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperengineering/sprout/internal/store"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "kitchen-tablet", false},
		{"with numbers", "tablet-2", false},
		{"single char", "a", false},
		{"underscore", "maya_ipad", false},
		{"numeric only", "123", false},
		{"reserved default", "default", false},
		{"max length", strings.Repeat("a", 64), false},

		{"empty", "", true},
		{"uppercase", "Kitchen", true},
		{"leading hyphen", "-tablet", true},
		{"trailing underscore", "tablet_", true},
		{"consecutive hyphens", "my--tablet", true},
		{"double underscore", "my__tablet", true},
		{"slash", "org/team", true},
		{"space", "my tablet", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if tt.wantErr && err != nil && !errors.Is(err, store.ErrInvalidID) {
				t.Errorf("ValidateID(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
		})
	}
}

func TestValidateIDForCreation_Reserved(t *testing.T) {
	for _, id := range []string{"default", "_system"} {
		if err := store.ValidateIDForCreation(id); !errors.Is(err, store.ErrReservedID) {
			t.Errorf("ValidateIDForCreation(%q) = %v, want ErrReservedID", id, err)
		}
	}
	if err := store.ValidateIDForCreation("living-room"); err != nil {
		t.Errorf("ValidateIDForCreation(living-room) unexpected error: %v", err)
	}
}

func TestValidateEntityID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"maya", false},
		{"Learner 7", false},
		{"num-12+7", false},
		{"", true},
		{" padded", true},
		{"padded ", true},
		{strings.Repeat("x", 129), true},
	}
	for _, tt := range tests {
		err := store.ValidateEntityID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateEntityID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}
