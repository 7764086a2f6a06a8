package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutexMapSerializesSameKey(t *testing.T) {
	locks := NewMutexMap()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("key")
			counter++
			locks.Unlock("key")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestMutexMapIndependentKeys(t *testing.T) {
	locks := NewMutexMap()
	locks.Lock("a")
	defer locks.Unlock("a")

	done := make(chan struct{})
	go func() {
		locks.Lock("b")
		locks.Unlock("b")
		close(done)
	}()

	<-done
}
