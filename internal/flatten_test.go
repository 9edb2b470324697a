package internal

import "testing"

// TestFlattenNestedAndArray tests that a nested map with an array is flattened correctly.
func TestFlattenNestedAndArray(t *testing.T) {
	input := map[string]interface{}{
		"repository": map[string]interface{}{
			"private": false,
			"commits": []interface{}{
				map[string]interface{}{"distinct": true},
				map[string]interface{}{"distinct": false},
			},
		},
	}

	flat := Flatten(input)
	if flat["repository.private"] != false {
		t.Fatalf("expected repository.private to be false")
	}
	if _, ok := flat["repository.commits"]; !ok {
		t.Fatalf("expected repository.commits to exist")
	}
	if flat["repository.commits[0].distinct"] != true {
		t.Fatalf("expected commits[0].distinct to be true")
	}
	if flat["repository.commits[1].distinct"] != false {
		t.Fatalf("expected commits[1].distinct to be false")
	}
}

// TestFlattenScalars tests that top-level scalars keep their keys.
func TestFlattenScalars(t *testing.T) {
	flat := Flatten(map[string]interface{}{"ref": "refs/heads/main", "deleted": false})
	if flat["ref"] != "refs/heads/main" {
		t.Fatalf("expected ref to pass through")
	}
	if flat["deleted"] != false {
		t.Fatalf("expected deleted to pass through")
	}
}
