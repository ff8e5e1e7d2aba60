package proposal

import (
	"reflect"
	"testing"
)

func TestEligible(t *testing.T) {
	candidates := []Candidate{
		{ID: 105, Topic: 17},
		{ID: 101, Topic: 5},
		{ID: 102, Topic: 17},
		{ID: 103, Topic: 9},
		{ID: 90, Topic: 17},
		{ID: 104, Topic: 17},
		{ID: 102, Topic: 17},
	}

	tests := []struct {
		name       string
		tracked    []int
		dispatched []uint64
		minID      uint64
		want       []uint64
	}{
		{"topic filter", []int{17}, nil, 0, []uint64{90, 102, 104, 105}},
		{"dispatched excluded", []int{17}, []uint64{102, 105}, 0, []uint64{90, 104}},
		{"min id excluded", []int{17}, nil, 100, []uint64{102, 104, 105}},
		{"all filters", []int{17}, []uint64{104}, 100, []uint64{102, 105}},
		{"multiple topics", []int{5, 9}, nil, 0, []uint64{101, 103}},
		{"no tracked topics", nil, nil, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Eligible(candidates, tt.tracked, tt.dispatched, tt.minID)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}
