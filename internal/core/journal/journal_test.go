package journal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type counter struct {
	j *Journal
	n int
}

func (c *counter) add(d int) {
	prev := c.n
	c.n += d
	c.j.Record(func() { c.n = prev })
}

func TestRevertRestoresState(t *testing.T) {
	c := &counter{j: New()}
	c.add(1)

	c.j.Begin()
	c.add(10)
	c.add(100)
	c.j.Revert()

	assert.Equal(t, 1, c.n)
	assert.False(t, c.j.Active())
}

func TestNestedScopes(t *testing.T) {
	c := &counter{j: New()}

	c.j.Begin()
	c.add(1)

	c.j.Begin()
	c.add(2)
	c.j.Commit()

	c.j.Begin()
	c.add(4)
	c.j.Revert()
	assert.Equal(t, 3, c.n)

	// the committed inner scope still belongs to the outer one
	c.j.Revert()
	assert.Equal(t, 0, c.n)
}

func TestRun(t *testing.T) {
	c := &counter{j: New()}

	err := c.j.Run(func() error {
		c.add(5)
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.n)

	err = c.j.Run(func() error {
		c.add(5)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 5, c.n)
}

func TestNilJournal(t *testing.T) {
	var j *Journal
	j.Begin()
	j.Record(func() { t.Fatal("must not be called") })
	j.Revert()
	assert.False(t, j.Active())
}
