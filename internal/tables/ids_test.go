package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	tok := NewToken(TableTypeDef, 5)
	assert.Equal(t, Token(0x02000005), tok)
	assert.Equal(t, TableTypeDef, tok.Table())
	assert.Equal(t, uint32(5), tok.RID())
	assert.False(t, tok.IsNil())
	assert.True(t, NewToken(TableTypeRef, 0).IsNil())
	assert.Equal(t, "TypeDef(0x02000005)", tok.String())
	assert.Equal(t, "UserString(0x70000001)", NewToken(TableUserString, 1).String())
}

func TestDecodeCodedIndex(t *testing.T) {
	tests := []struct {
		kind  CodedIndex
		value uint32
		want  Token
	}{
		{TypeDefOrRef, 0x04 | 0, NewToken(TableTypeDef, 1)},
		{TypeDefOrRef, 0x08 | 1, NewToken(TableTypeRef, 2)},
		{TypeDefOrRef, 0x0C | 2, NewToken(TableTypeSpec, 3)},
		{ResolutionScope, 1<<2 | 2, NewToken(TableAssemblyRef, 1)},
		{ResolutionScope, 7<<2 | 3, NewToken(TableTypeRef, 7)},
		{CustomAttributeType, 4<<3 | 3, NewToken(TableMemberRef, 4)},
		{HasCustomAttribute, 1<<5 | 14, NewToken(TableAssembly, 1)},
		{Implementation, 3<<2 | 1, NewToken(TableAssemblyRef, 3)},
	}
	for _, tt := range tests {
		got, ok := DecodeCodedIndex(tt.kind, tt.value)
		require.True(t, ok, "value 0x%X", tt.value)
		assert.Equal(t, tt.want, got)

		raw, ok := EncodeCodedIndex(tt.kind, tt.want)
		require.True(t, ok)
		assert.Equal(t, tt.value, raw)
	}
}

func TestDecodeCodedIndexInvalidTag(t *testing.T) {
	_, ok := DecodeCodedIndex(TypeDefOrRef, 3)
	assert.False(t, ok)

	_, ok = DecodeCodedIndex(CustomAttributeType, 1<<3|0)
	assert.False(t, ok)

	_, ok = EncodeCodedIndex(TypeDefOrRef, NewToken(TableMethodDef, 1))
	assert.False(t, ok)
}
