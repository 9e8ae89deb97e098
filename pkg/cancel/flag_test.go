package cancel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagStartsClear(t *testing.T) {
	assert.False(t, NewFlag().Canceled())
}

func TestCancelIsSticky(t *testing.T) {
	flag := NewFlag()
	flag.Cancel()
	flag.Cancel()
	assert.True(t, flag.Canceled())
}

func TestCancelVisibleAcrossGoroutines(t *testing.T) {
	flag := NewFlag()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !flag.Canceled() {
		}
	}()
	flag.Cancel()
	wg.Wait()
}
