package planner

import "testing"

func TestCheckAcyclic_Linear(t *testing.T) {
	specs := []TaskSpec{
		{LocalID: "t1"},
		{LocalID: "t2", Dependencies: []string{"t1"}},
		{LocalID: "t3", Dependencies: []string{"t2"}},
	}
	if err := checkAcyclic(specs); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCheckAcyclic_DetectsCycle(t *testing.T) {
	specs := []TaskSpec{
		{LocalID: "t1", Dependencies: []string{"t2"}},
		{LocalID: "t2", Dependencies: []string{"t1"}},
	}
	if err := checkAcyclic(specs); err == nil {
		t.Fatal("expected cycle error, got nil")
	}
}

func TestCheckAcyclic_UnknownDependency(t *testing.T) {
	specs := []TaskSpec{
		{LocalID: "t1", Dependencies: []string{"ghost"}},
	}
	if err := checkAcyclic(specs); err == nil {
		t.Fatal("expected unknown-dependency error, got nil")
	}
}

func TestCheckAcyclic_DuplicateID(t *testing.T) {
	specs := []TaskSpec{
		{LocalID: "t1"},
		{LocalID: "t1"},
	}
	if err := checkAcyclic(specs); err == nil {
		t.Fatal("expected duplicate-id error, got nil")
	}
}

func TestCheckAcyclic_DiamondIsFine(t *testing.T) {
	specs := []TaskSpec{
		{LocalID: "a"},
		{LocalID: "b", Dependencies: []string{"a"}},
		{LocalID: "c", Dependencies: []string{"a"}},
		{LocalID: "d", Dependencies: []string{"b", "c"}},
	}
	if err := checkAcyclic(specs); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
