package domain

import (
	"regexp"
	"time"
)

// Task type names are embedded in claim-queue filters, so the pattern is
// strict enough to be query-safe without escaping.
var (
	validTaskTypeName = regexp.MustCompile(`^[a-z0-9_]{1,100}$`)
	validSkillPath    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,199}$`)
)

// TaskType is a named task category mapping to an executable skill.
// Name is immutable after creation.
type TaskType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SkillPath   *string   `json:"skill_path,omitempty"`
	ParamSchema JSONB     `json:"param_schema,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ValidTaskTypeName(name string) bool {
	return validTaskTypeName.MatchString(name)
}

func ValidSkillPath(path string) bool {
	return validSkillPath.MatchString(path)
}
