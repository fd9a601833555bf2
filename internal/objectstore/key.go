package objectstore

import (
	"fmt"
	"strings"
)

// KeyPrefix is the namespace all worker-uploaded objects must live under.
const KeyPrefix = "worker-results/"

// ValidateKey enforces that a storage key sits inside the task's namespace:
// worker-results/{taskID}/<object>. Registration of keys outside the
// namespace is rejected so one task can never shadow another's objects.
func ValidateKey(key, taskID string) error {
	want := KeyPrefix + taskID + "/"
	if !strings.HasPrefix(key, want) {
		return fmt.Errorf("storage key must start with %q", want)
	}
	if len(key) == len(want) {
		return fmt.Errorf("storage key must name an object under %q", want)
	}
	return nil
}
