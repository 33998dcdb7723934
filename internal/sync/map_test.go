package sync

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type MapTestSuite struct {
	suite.Suite
}

func TestMapSuite(t *testing.T) {
	suite.Run(t, new(MapTestSuite))
}

type entry struct{ name string }

func (s *MapTestSuite) TestLoadOrStore() {
	m := NewMap[string, int]()

	v, loaded := m.LoadOrStore("a", 1)
	s.False(loaded)
	s.Equal(1, v)

	v, loaded = m.LoadOrStore("a", 2)
	s.True(loaded)
	s.Equal(1, v)

	v, ok := m.Load("a")
	s.True(ok)
	s.Equal(1, v)

	_, ok = m.Load("b")
	s.False(ok)
	s.Equal(1, m.Len())
}

func (s *MapTestSuite) TestCompareAndDelete() {
	m := NewMap[string, *entry]()
	first := &entry{name: "first"}
	second := &entry{name: "second"}
	m.LoadOrStore("k", first)

	s.False(m.CompareAndDelete("k", second))
	s.False(m.CompareAndDelete("missing", first))
	s.True(m.CompareAndDelete("k", first))
	s.Zero(m.Len())
}

func (s *MapTestSuite) TestRangeStops() {
	m := NewMap[int, int]()
	for i := 0; i < 10; i++ {
		m.LoadOrStore(i, i*i)
	}

	seen := 0
	m.Range(func(_, _ int) bool {
		seen++
		return seen < 3
	})
	s.Equal(3, seen)
	s.Len(m.Values(), 10)
}

func (s *MapTestSuite) TestConcurrentAccess() {
	m := NewMap[string, int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%10)
			m.LoadOrStore(key, i)
			m.Load(key)
			m.Len()
		}(i)
	}
	wg.Wait()
	s.Equal(10, m.Len())
}
