package memory_test

import (
	"testing"

	"github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/store/memory"
	"github.com/fistfulayen/ubtrippin-sub001/store/storetest"
)

func TestSharedBehavior(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}
