package memory_test

import (
	"testing"

	"relctl/internal/release"
	"relctl/internal/release/recordstoretest"
	"relctl/internal/store/memory"
)

func TestRecordStore(t *testing.T) {
	recordstoretest.Run(t, func(t *testing.T) release.RecordStore {
		return memory.NewRecordStore()
	})
}
