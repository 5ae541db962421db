// nolint: gochecknoglobals
package idgenerator

import gonanoid "github.com/matoous/go-nanoid/v2"

const (
	JobRunIDLength             = 12
	RequestIDLength            = 15
	NodeIDSuffixLength         = 6
	EtcdNamespaceForTestLength = 10
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func JobRunID() string {
	return gonanoid.MustGenerate(alphabet, JobRunIDLength)
}

func RequestID() string {
	return gonanoid.MustGenerate(alphabet, RequestIDLength)
}

// NodeIDSuffix is appended to the default node ID, so two processes on one host never collide.
func NodeIDSuffix() string {
	return gonanoid.MustGenerate(alphabet, NodeIDSuffixLength)
}

func EtcdNamespaceForTest() string {
	return gonanoid.MustGenerate(alphabet, EtcdNamespaceForTestLength)
}
