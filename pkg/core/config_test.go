package core

import (
	"testing"
)

// TestFilterConfig tests the FilterConfig structure.
func TestFilterConfig(t *testing.T) {
	config := FilterConfig{
		Interface: "eth0",
		Port:      5001,
	}

	if config.Interface != "eth0" {
		t.Errorf("Expected Interface to be 'eth0', got '%s'", config.Interface)
	}
	if config.Port != 5001 {
		t.Errorf("Expected Port to be 5001, got %d", config.Port)
	}
}

// TestTableConfig tests the TableConfig structure.
func TestTableConfig(t *testing.T) {
	config := TableConfig{Bits: 8, MaxEntries: 1024}

	if config.Bits != 8 {
		t.Errorf("Expected Bits to be 8, got %d", config.Bits)
	}
	if config.MaxEntries != 1024 {
		t.Errorf("Expected MaxEntries to be 1024, got %d", config.MaxEntries)
	}
}

// TestPolicyConfig tests the PolicyConfig structure.
func TestPolicyConfig(t *testing.T) {
	config := PolicyConfig{
		InitialCwnd:        10,
		DefaultMSS:         1460,
		DefaultWindowScale: 7,
	}

	if config.InitialCwnd != 10 {
		t.Errorf("Expected InitialCwnd to be 10, got %d", config.InitialCwnd)
	}
	if config.DefaultMSS != 1460 {
		t.Errorf("Expected DefaultMSS to be 1460, got %d", config.DefaultMSS)
	}
	if config.DefaultWindowScale != 7 {
		t.Errorf("Expected DefaultWindowScale to be 7, got %d", config.DefaultWindowScale)
	}
}
