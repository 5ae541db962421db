package idgenerator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerators(t *testing.T) {
	t.Parallel()

	assert.Len(t, JobRunID(), JobRunIDLength)
	assert.Len(t, RequestID(), RequestIDLength)
	assert.Len(t, NodeIDSuffix(), NodeIDSuffixLength)
	assert.Len(t, EtcdNamespaceForTest(), EtcdNamespaceForTestLength)
	assert.NotEqual(t, JobRunID(), JobRunID())
	assert.Regexp(t, `^[0-9a-zA-Z]+$`, JobRunID())
}
