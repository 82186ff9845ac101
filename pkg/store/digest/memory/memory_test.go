package memory

import (
	"testing"

	"github.com/marmos91/filemq/pkg/store/digest"
	digesttesting "github.com/marmos91/filemq/pkg/store/digest/testing"
)

func TestMemoryDigestStore(t *testing.T) {
	suite := &digesttesting.StoreTestSuite{
		NewStore: func(t *testing.T) digest.Store {
			return NewMemoryDigestStore()
		},
	}
	suite.Run(t)
}
