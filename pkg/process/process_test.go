package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProcess_KnownTypes(t *testing.T) {
	for _, name := range []string{"scrape_listings", "export_report"} {
		p, err := NewProcess(name)
		assert.NoError(t, err, name)
		assert.NotNil(t, p, name)
	}
}

func TestNewProcess_UnknownType(t *testing.T) {
	p, err := NewProcess("transcode_video")
	assert.Error(t, err)
	assert.Nil(t, p)
}
