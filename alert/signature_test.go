package alert

import (
	"testing"

	"fimon/snapshot"

	"github.com/stretchr/testify/assert"
)

func TestSignatureSetEquality(t *testing.T) {
	a := NewSignature(snapshot.ChangeSet{Modified: []string{"b", "a"}, New: []string{"c"}})
	b := NewSignature(snapshot.ChangeSet{Modified: []string{"a", "b", "a"}, New: []string{"c"}, Deleted: []string{}})
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestSignatureDistinguishesSets(t *testing.T) {
	base := NewSignature(snapshot.ChangeSet{Modified: []string{"a"}})
	assert.False(t, base.Equal(NewSignature(snapshot.ChangeSet{New: []string{"a"}})))
	assert.False(t, base.Equal(NewSignature(snapshot.ChangeSet{Deleted: []string{"a"}})))
	assert.False(t, base.Equal(NewSignature(snapshot.ChangeSet{Modified: []string{"a", "b"}})))
	assert.False(t, base.Equal(Signature{}))
}

func TestSignatureEmpty(t *testing.T) {
	s := NewSignature(snapshot.ChangeSet{})
	assert.True(t, s.Empty())
	assert.True(t, s.Equal(Signature{}))
	assert.Zero(t, s.Digest())
}

func TestSignaturePathBoundaries(t *testing.T) {
	joined := NewSignature(snapshot.ChangeSet{Modified: []string{"ab"}})
	split := NewSignature(snapshot.ChangeSet{Modified: []string{"a", "b"}})
	assert.False(t, joined.Equal(split))
}
