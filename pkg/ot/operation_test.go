package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersectionTable(t *testing.T) {
	cases := []struct {
		a1, a2, b1, b2 uint32
		wantOK         bool
		wantStart      uint32
		wantEnd        uint32
	}{
		{0, 4, 5, 10, false, 0, 0},
		{0, 5, 5, 10, true, 5, 6},
		{2, 4, 0, 10, true, 2, 5},
		{4, 6, 0, 4, true, 4, 5},
		{2, 10, 5, 11, true, 5, 11},
		{0, 4, 3, 6, true, 3, 5},
	}
	for _, c := range cases {
		start, end, ok := Intersection(c.a1, c.a2, c.b1, c.b2)
		assert.Equalf(t, c.wantOK, ok, "Intersection(%d,%d,%d,%d) ok", c.a1, c.a2, c.b1, c.b2)
		if c.wantOK {
			assert.Equalf(t, c.wantStart, start, "Intersection(%d,%d,%d,%d) start", c.a1, c.a2, c.b1, c.b2)
			assert.Equalf(t, c.wantEnd, end, "Intersection(%d,%d,%d,%d) end", c.a1, c.a2, c.b1, c.b2)
		}
	}
}

func TestTransformInsertAfterInsert(t *testing.T) {
	cases := []struct {
		old, new Operation
		wantPos  uint32
	}{
		{Insert(0, 0, "123"), Insert(0, 0, "123"), 3},
		{Insert(0, 0, "123"), Insert(4, 0, "123"), 7},
		{Insert(4, 0, "123"), Insert(0, 0, "123"), 0},
		{Insert(1, 0, "123"), Insert(0, 0, "123"), 0},
	}
	for _, c := range cases {
		got := TransformRelativeTo(c.new, c.old)
		assert.Equal(t, c.wantPos, got.Position)
	}
}

func TestTransformInsertAfterDelete(t *testing.T) {
	cases := []struct {
		old, new Operation
		wantPos  uint32
	}{
		{Delete(0, 0, 2), Insert(0, 0, ""), 0},
		{Delete(0, 0, 2), Insert(2, 0, ""), 0},
		{Delete(0, 0, 2), Insert(3, 0, ""), 1},
		{Delete(0, 0, 2), Insert(6, 0, ""), 4},
		{Delete(4, 0, 2), Insert(3, 0, ""), 3},
		{Delete(5, 0, 2), Insert(0, 0, ""), 0},
	}
	for _, c := range cases {
		got := TransformRelativeTo(c.new, c.old)
		assert.Equal(t, c.wantPos, got.Position)
	}
}

func TestTransformDeleteAfterInsert(t *testing.T) {
	cases := []struct {
		old, new Operation
		wantPos  uint32
	}{
		{Insert(0, 0, "123"), Delete(0, 0, 2), 3},
		{Insert(5, 0, "123"), Delete(0, 0, 2), 0},
		{Insert(0, 0, "123"), Delete(1, 0, 2), 4},
		{Insert(0, 0, "1234"), Delete(5, 0, 2), 9},
	}
	for _, c := range cases {
		got := TransformRelativeTo(c.new, c.old)
		assert.Equal(t, c.wantPos, got.Position)
	}
}

func TestTransformDeleteAfterDelete(t *testing.T) {
	cases := []struct {
		old, new    Operation
		wantPos     uint32
		wantLength  uint32
	}{
		{Delete(0, 0, 5), Delete(0, 0, 5), 0, 0},
		{Delete(0, 0, 3), Delete(5, 0, 5), 2, 5},
		{Delete(0, 0, 6), Delete(3, 0, 5), 0, 2},
		{Delete(0, 0, 5), Delete(1, 0, 4), 1, 0},
		{Delete(4, 0, 3), Delete(0, 0, 5), 0, 4},
		{Delete(0, 0, 5), Delete(1, 0, 9), 0, 5},
		{Delete(5, 0, 5), Delete(1, 0, 3), 1, 3},
	}
	for _, c := range cases {
		got := TransformRelativeTo(c.new, c.old)
		assert.Equal(t, c.wantPos, got.Position)
		assert.Equal(t, c.wantLength, got.Length)
	}
}

func TestApplyInsert(t *testing.T) {
	text, err := Apply(Insert(2, 0, "XY"), "abcd")
	require.NoError(t, err)
	assert.Equal(t, "abXYcd", text)

	_, err = Apply(Insert(99, 0, "XY"), "abcd")
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestApplyDelete(t *testing.T) {
	text, err := Apply(Delete(1, 0, 2), "abcd")
	require.NoError(t, err)
	assert.Equal(t, "ad", text)

	_, err = Apply(Delete(1, 0, 99), "abcd")
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

// TestConvergence checks the OT convergence property: applying a then
// transform(b,a), or b then transform(a,b), yields the same result.
func TestConvergence(t *testing.T) {
	base := "hello"
	a := Insert(1, 0, "XX")
	b := Delete(3, 0, 2)

	aThenB, err := applySequence(base, a, TransformRelativeTo(b, a))
	require.NoError(t, err)

	bThenA, err := applySequence(base, b, TransformRelativeTo(a, b))
	require.NoError(t, err)

	assert.Equal(t, aThenB, bThenA)
}

// TestIdentityOnDisjointCommutingOps checks that an operation positioned
// entirely before another, disjoint one is left unchanged by transforming
// it relative to that other operation.
func TestIdentityOnDisjointCommutingOps(t *testing.T) {
	a := Insert(0, 0, "XX")
	laterInsert := Insert(10, 0, "YY")
	aUnchanged := TransformRelativeTo(a, laterInsert)
	assert.Equal(t, a.Position, aUnchanged.Position)

	laterDelete := Delete(10, 0, 2)
	aStillUnchanged := TransformRelativeTo(a, laterDelete)
	assert.Equal(t, a.Position, aStillUnchanged.Position)

	del := Delete(0, 0, 3)
	laterInsertAfterDel := Insert(10, 0, "ZZ")
	delUnchanged := TransformRelativeTo(del, laterInsertAfterDel)
	assert.Equal(t, del.Position, delUnchanged.Position)
}

// TestTransformShiftsPositionAfterEarlierInsert checks the complementary
// case: an operation positioned at or after an earlier insert is shifted
// forward by that insert's length.
func TestTransformShiftsPositionAfterEarlierInsert(t *testing.T) {
	earlier := Insert(0, 0, "XX")
	b := Insert(10, 0, "YY")

	bPrime := TransformRelativeTo(b, earlier)
	assert.Equal(t, b.Position+uint32(len(earlier.Text)), bPrime.Position)
}

func TestLengthPreservation(t *testing.T) {
	base := "hello world"
	ins := Insert(5, 0, ", there")
	afterIns, err := Apply(ins, base)
	require.NoError(t, err)
	assert.Equal(t, len(base)+len(ins.Text), len(afterIns))

	del := Delete(0, 0, 5)
	afterDel, err := Apply(del, base)
	require.NoError(t, err)
	assert.Equal(t, len(base)-int(del.Length), len(afterDel))
}

func applySequence(base string, ops ...Operation) (string, error) {
	text := base
	for _, op := range ops {
		var err error
		text, err = Apply(op, text)
		if err != nil {
			return "", err
		}
	}
	return text, nil
}
