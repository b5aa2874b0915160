package importer

import "fmt"

// Result holds the outcome of an import.
type Result struct {
	Files    int `json:"files"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Linked   int `json:"linked"`
}

// Add accumulates other into r.
func (r *Result) Add(other *Result) {
	if other == nil {
		return
	}
	r.Files += other.Files
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Linked += other.Linked
}

// Summary returns a human-readable summary of the import result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Import complete: %d inserted, %d updated, %d links\n"+
			"Read %d files",
		r.Inserted, r.Updated, r.Linked,
		r.Files,
	)
}
