package testing

import (
	stdtesting "testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectURI(t *stdtesting.T) {
	tests := map[string]string{
		"mongodb://localhost:32768":                         "mongodb://localhost:32768/?directConnection=true",
		"mongodb://localhost:32768/":                        "mongodb://localhost:32768/?directConnection=true",
		"mongodb://localhost:32768/?replicaSet=rs":          "mongodb://localhost:32768/?replicaSet=rs&directConnection=true",
		"mongodb://localhost:32768/?directConnection=false": "mongodb://localhost:32768/?directConnection=false",
	}

	for in, want := range tests {
		assert.Equal(t, want, directURI(in))
	}
}
